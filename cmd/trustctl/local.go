package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"

	"github.com/and161185/visitguard/internal/config"
	"github.com/and161185/visitguard/internal/crypto"
	"github.com/and161185/visitguard/internal/kms"
	"github.com/and161185/visitguard/internal/model"
	"github.com/and161185/visitguard/internal/rbac"
	grpcserver "github.com/and161185/visitguard/internal/server/grpc"
	"github.com/and161185/visitguard/internal/template"
	"github.com/and161185/visitguard/internal/webhook"
)

func maskEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask-email EMAIL",
		Short: "Mask an email address for display",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), crypto.MaskEmail(args[0]))
			return nil
		},
	}
}

func maskPhoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask-phone PHONE",
		Short: "Mask a phone number, keeping the last four digits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), crypto.MaskPhone(args[0]))
			return nil
		},
	}
}

func hashCmd() *cobra.Command {
	var salt string
	cmd := &cobra.Command{
		Use:   "hash VALUE",
		Short: "Compute a blind index (saltHex:hashHex)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s []byte
			if salt != "" {
				var err error
				if s, err = base64.StdEncoding.DecodeString(salt); err != nil {
					return fmt.Errorf("salt: %w", err)
				}
			}
			idx, err := crypto.HashField(args[0], s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), idx)
			return nil
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "", "fixed salt (base64); random when empty")
	return cmd
}

func verifyHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-hash VALUE INDEX",
		Short: "Check a value against a blind index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !crypto.VerifyHash(args[0], model.BlindIndex(args[1])) {
				return fmt.Errorf("no match")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "match")
			return nil
		},
	}
}

// encryptor builds a local-KMS encryptor from --master-key or VISITGUARD_KMS_MASTER_KEY.
func encryptor(masterB64, keyID string) (*crypto.Encryptor, error) {
	if masterB64 == "" {
		masterB64 = os.Getenv(config.EnvPrefix + "_KMS_MASTER_KEY")
	}
	master, err := config.KMSConfig{MasterKey: masterB64}.Master()
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(master)
	local, err := kms.NewLocal(master)
	if err != nil {
		return nil, err
	}
	return crypto.NewEncryptor(local, keyID, 5*time.Second), nil
}

func encryptCmd() *cobra.Command {
	var master, keyID string
	cmd := &cobra.Command{
		Use:   "encrypt PLAINTEXT",
		Short: "Envelope-encrypt a field with the local key service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := encryptor(master, keyID)
			if err != nil {
				return err
			}
			ev, err := enc.EncryptField(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().StringVar(&master, "master-key", "", "32-byte master key (base64)")
	cmd.Flags().StringVar(&keyID, "key-id", "local/default", "key id bound into the wrapped data key")
	return cmd
}

func decryptCmd() *cobra.Command {
	var master, keyID string
	cmd := &cobra.Command{
		Use:   "decrypt FILE|-",
		Short: "Decrypt an encrypted field (JSON as printed by encrypt)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readAll(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			var ev model.EncryptedValue
			if err := json.Unmarshal(b, &ev); err != nil {
				return fmt.Errorf("parse encrypted value: %w", err)
			}
			enc, err := encryptor(master, keyID)
			if err != nil {
				return err
			}
			pt, err := enc.DecryptField(cmd.Context(), ev)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pt)
			return nil
		},
	}
	cmd.Flags().StringVar(&master, "master-key", "", "32-byte master key (base64)")
	cmd.Flags().StringVar(&keyID, "key-id", "local/default", "key id the value was sealed under")
	return cmd
}

func signCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign FILE|-",
		Short: "Print the hex HMAC-SHA256 webhook signature of a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := readAll(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(b, secret))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook secret")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}

// parseData turns key.path=value pairs into a nested template context.
func parseData(pairs []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad data %q, want key.path=value", p)
		}
		m := out
		parts := strings.Split(k, ".")
		for _, part := range parts[:len(parts)-1] {
			next, ok := m[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[part] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out, nil
}

func renderCmd() *cobra.Command {
	var data []string
	cmd := &cobra.Command{
		Use:   "render TEMPLATE_ID",
		Short: "Render a built-in template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseData(data)
			if err != nil {
				return err
			}
			reg := template.NewRegistry()
			r, err := reg.RenderTemplate(args[0], d)
			if err != nil {
				return err
			}
			if missing, _ := reg.MissingVariables(args[0], d); len(missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: missing %s\n", strings.Join(missing, ", "))
			}
			if r.Subject != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Subject: %s\n\n", r.Subject)
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Text)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&data, "data", "d", nil, "template value as key.path=value (repeatable)")
	return cmd
}

func permsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "perms ROLE",
		Short: "List the permissions granted to a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := rbac.ParseRole(args[0])
			if err != nil {
				return err
			}
			for _, p := range rbac.RolePermissions(role) {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func canCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can ROLE PERMISSION...",
		Short: "Check whether a role holds any of the permissions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := rbac.ParseRole(args[0])
			if err != nil {
				return err
			}
			perms := make([]rbac.Permission, 0, len(args)-1)
			for _, a := range args[1:] {
				perms = append(perms, rbac.Permission(a))
			}
			if err := rbac.Authorize(role, perms...); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "allowed")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var key, role, sub string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token with the server signing key and save it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := rbac.ParseRole(role)
			if err != nil {
				return err
			}
			id := uuid.Must(uuid.NewV4())
			if sub != "" {
				if id, err = uuid.FromString(sub); err != nil {
					return fmt.Errorf("subject: %w", err)
				}
			}
			if key == "" {
				key = os.Getenv(config.EnvPrefix + "_SERVER_JWT_KEY")
			}
			if key == "" {
				return fmt.Errorf("missing signing key (--key)")
			}
			tok, err := grpcserver.IssueToken([]byte(key), id, r, ttl)
			if err != nil {
				return err
			}
			if err := saveToken(tok, time.Now().Add(ttl)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token saved for %s (%s)\n", id, r)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "HS256 signing key (default $VISITGUARD_SERVER_JWT_KEY)")
	cmd.Flags().StringVar(&role, "role", "", "staff role")
	cmd.Flags().StringVar(&sub, "sub", "", "subject uuid (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
