package crypto

import "fmt"

// EncryptFields copies the field map and replaces each present named
// field's value with its envelope string. Absent fields are left absent.
func (p *EnvelopeProvider) EncryptFields(fields map[string]string, password string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	for _, name := range names {
		value, ok := out[name]
		if !ok || value == "" {
			continue
		}

		env, err := p.Encrypt(value, password)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %s: %w", name, err)
		}
		out[name] = env.String()
	}

	return out, nil
}

// DecryptFields copies the field map and decrypts each named field whose
// value carries an envelope. A field that fails to decrypt keeps its raw
// envelope and its name is reported in the second return value; decryption
// of the remaining fields always proceeds, so callers can render the rest
// of a record even when one field is unrecoverable.
func (p *EnvelopeProvider) DecryptFields(fields map[string]string, password string, names []string) (map[string]string, []string) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}

	var stillEncrypted []string
	for _, name := range names {
		value, ok := out[name]
		if !ok || value == "" {
			continue
		}

		env, err := ParseEnvelope(value)
		if err != nil {
			// Not envelope-shaped: already plaintext, nothing to do.
			continue
		}

		plaintext, err := p.open(env, password)
		if err != nil {
			stillEncrypted = append(stillEncrypted, name)
			continue
		}
		out[name] = plaintext
	}

	return out, stillEncrypted
}
