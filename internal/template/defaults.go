package template

import (
	"slices"

	"github.com/and161185/visitguard/internal/model"
)

type body struct {
	subject string
	text    string
}

var defaultBodies = map[model.EventType]map[model.ChannelType]body{
	model.EventHostAlert: {
		model.ChannelSMS: {text: "{{visitor.firstName}} {{visitor.lastName}} is here to see you at {{location.name}}."},
		model.ChannelEmail: {
			subject: "Your visitor {{visitor.firstName}} {{visitor.lastName}} has arrived",
			text:    "Hello {{host.name}},\n\n{{visitor.firstName}} {{visitor.lastName}} from {{visitor.company}} checked in at {{location.name}} at {{visit.checkInTime}}.\nPurpose: {{visit.purpose}}",
		},
		model.ChannelSlack: {text: ":wave: *{{visitor.firstName}} {{visitor.lastName}}* ({{visitor.company}}) arrived at {{location.name}} to see {{host.name}}."},
		model.ChannelTeams: {text: "**{{visitor.firstName}} {{visitor.lastName}}** ({{visitor.company}}) arrived at {{location.name}} to see {{host.name}}."},
	},
	model.EventVisitorConfirmation: {
		model.ChannelSMS: {text: "Hi {{visitor.firstName}}, your visit to {{organization.name}} on {{visit.scheduledAt}} is confirmed."},
		model.ChannelEmail: {
			subject: "Visit confirmed: {{organization.name}}",
			text:    "Hi {{visitor.firstName}},\n\nYour visit to {{organization.name}} ({{location.name}}) on {{visit.scheduledAt}} with {{host.name}} is confirmed.",
		},
		model.ChannelSlack: {text: "Visit confirmed for *{{visitor.firstName}} {{visitor.lastName}}* on {{visit.scheduledAt}} with {{host.name}}."},
		model.ChannelTeams: {text: "Visit confirmed for **{{visitor.firstName}} {{visitor.lastName}}** on {{visit.scheduledAt}} with {{host.name}}."},
	},
	model.EventCheckoutAlert: {
		model.ChannelSMS: {text: "{{visitor.firstName}} {{visitor.lastName}} checked out of {{location.name}}."},
		model.ChannelEmail: {
			subject: "{{visitor.firstName}} {{visitor.lastName}} has checked out",
			text:    "Hello {{host.name}},\n\n{{visitor.firstName}} {{visitor.lastName}} checked out of {{location.name}} at {{visit.checkOutTime}}.",
		},
		model.ChannelSlack: {text: ":door: *{{visitor.firstName}} {{visitor.lastName}}* checked out of {{location.name}} at {{visit.checkOutTime}}."},
		model.ChannelTeams: {text: "**{{visitor.firstName}} {{visitor.lastName}}** checked out of {{location.name}} at {{visit.checkOutTime}}."},
	},
}

// Defaults builds the built-in templates, one per event and channel.
func Defaults() []model.NotificationTemplate {
	out := make([]model.NotificationTemplate, 0, len(model.NotificationEvents)*len(model.Channels))
	for _, ev := range model.NotificationEvents {
		for _, ch := range model.Channels {
			b := defaultBodies[ev][ch]
			vars := Placeholders(b.subject)
			for _, p := range Placeholders(b.text) {
				if !slices.Contains(vars, p) {
					vars = append(vars, p)
				}
			}
			out = append(out, model.NotificationTemplate{
				ID:           DefaultID(ev, ch),
				Name:         string(ev) + " (" + string(ch) + ")",
				EventType:    ev,
				ChannelType:  ch,
				Subject:      b.subject,
				TextTemplate: b.text,
				Variables:    vars,
				IsDefault:    true,
			})
		}
	}
	return out
}
