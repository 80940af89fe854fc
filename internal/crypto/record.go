package crypto

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/model"
)

// FieldKind selects the masking rule for a PII field.
type FieldKind int

const (
	KindText FieldKind = iota
	KindEmail
	KindPhone
)

// FieldSpec declares one encrypted field of an entity.
type FieldSpec struct {
	Name       string
	Kind       FieldKind
	Searchable bool // also stored as a blind index
}

// EncryptedFields is the static table of PII fields per persisted entity.
var EncryptedFields = map[string][]FieldSpec{
	"visitor": {
		{Name: "firstName", Kind: KindText},
		{Name: "lastName", Kind: KindText},
		{Name: "email", Kind: KindEmail, Searchable: true},
		{Name: "phone", Kind: KindPhone, Searchable: true},
		{Name: "idNumber", Kind: KindText, Searchable: true},
	},
	"host": {
		{Name: "email", Kind: KindEmail, Searchable: true},
		{Name: "phone", Kind: KindPhone, Searchable: true},
	},
	"emergency_contact": {
		{Name: "name", Kind: KindText},
		{Name: "phone", Kind: KindPhone},
	},
}

// SealedRecord is the persisted form of an entity after SealRecord.
type SealedRecord struct {
	Encrypted map[string]model.EncryptedValue
	Index     map[string]model.BlindIndex
	Plain     map[string]string // fields not listed in EncryptedFields
}

// WithIndexSalt returns a copy whose searchable fields are indexed with a fixed salt,
// which makes their blind indexes usable for equality lookups.
func (e *Encryptor) WithIndexSalt(salt []byte) *Encryptor {
	cp := *e
	cp.indexSalt = append([]byte(nil), salt...)
	return &cp
}

// SealRecord encrypts the PII fields of rec declared for entity. Empty values are skipped.
func (e *Encryptor) SealRecord(ctx context.Context, entity string, rec map[string]string) (SealedRecord, error) {
	specs, ok := EncryptedFields[entity]
	if !ok {
		return SealedRecord{}, fmt.Errorf("%w: unknown entity %q", errs.ErrValidation, entity)
	}
	out := SealedRecord{
		Encrypted: make(map[string]model.EncryptedValue),
		Index:     make(map[string]model.BlindIndex),
		Plain:     make(map[string]string),
	}
	declared := make(map[string]struct{}, len(specs))
	for _, fs := range specs {
		declared[fs.Name] = struct{}{}
		v := rec[fs.Name]
		if strings.TrimSpace(v) == "" {
			continue
		}
		ev, err := e.EncryptField(ctx, v)
		if err != nil {
			return SealedRecord{}, fmt.Errorf("seal %s.%s: %w", entity, fs.Name, err)
		}
		out.Encrypted[fs.Name] = ev
		if fs.Searchable {
			idx, err := HashField(IndexValue(fs.Kind, v), e.indexSalt)
			if err != nil {
				return SealedRecord{}, fmt.Errorf("index %s.%s: %w", entity, fs.Name, err)
			}
			out.Index[fs.Name] = idx
		}
	}
	for k, v := range rec {
		if _, ok := declared[k]; !ok {
			out.Plain[k] = v
		}
	}
	return out, nil
}

// OpenRecord decrypts a SealedRecord back into a flat map. Encrypted keys the
// entity does not declare are rejected, so a record cannot be opened under a
// different entity to dodge masking.
func (e *Encryptor) OpenRecord(ctx context.Context, entity string, sr SealedRecord) (map[string]string, error) {
	specs, ok := EncryptedFields[entity]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity %q", errs.ErrValidation, entity)
	}
	for name := range sr.Encrypted {
		if !slices.ContainsFunc(specs, func(fs FieldSpec) bool { return fs.Name == name }) {
			return nil, fmt.Errorf("%w: %s has no encrypted field %q", errs.ErrValidation, entity, name)
		}
	}
	out := make(map[string]string, len(sr.Plain)+len(sr.Encrypted))
	for k, v := range sr.Plain {
		out[k] = v
	}
	for name, ev := range sr.Encrypted {
		pt, err := e.DecryptField(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("open %s.%s: %w", entity, name, err)
		}
		out[name] = pt
	}
	return out, nil
}

// MaskRecord returns a copy of rec with the entity's PII fields masked for display.
func MaskRecord(entity string, rec map[string]string) map[string]string {
	return maskFields(entity, rec, nil)
}

// MaskOpened masks an opened record: the entity's PII fields plus every field
// that came out of sr.Encrypted.
func MaskOpened(entity string, sr SealedRecord, rec map[string]string) map[string]string {
	return maskFields(entity, rec, sr.Encrypted)
}

func maskFields(entity string, rec map[string]string, sealed map[string]model.EncryptedValue) map[string]string {
	out := make(map[string]string, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	for name := range sealed {
		if _, ok := rec[name]; ok {
			out[name] = "***"
		}
	}
	for _, fs := range EncryptedFields[entity] {
		v, ok := rec[fs.Name]
		if !ok {
			continue
		}
		switch fs.Kind {
		case KindEmail:
			out[fs.Name] = MaskEmail(v)
		case KindPhone:
			out[fs.Name] = MaskPhone(v)
		default:
			out[fs.Name] = "***"
		}
	}
	return out
}

// IndexValue normalizes a value before blind indexing: emails compare
// case-insensitively and phones by digits only.
func IndexValue(kind FieldKind, v string) string {
	v = strings.TrimSpace(v)
	switch kind {
	case KindEmail:
		return strings.ToLower(v)
	case KindPhone:
		return digitsOnly(v)
	}
	return v
}
