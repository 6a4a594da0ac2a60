package postgres

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/sgrastar/authrim-sub002/internal/model"
)

var _ model.SigningKeyStore = (*SigningKeyRepository)(nil)

type SigningKeyRepository struct {
	db querier
}

func NewSigningKeyRepository(db *Connection) *SigningKeyRepository {
	return &SigningKeyRepository{db: db}
}

func (r *SigningKeyRepository) Save(ctx context.Context, key model.SigningKey) error {
	const query = `
        INSERT INTO signing_keys (kid, private_key_pem, created_at, is_active, demoted_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := r.db.Exec(ctx, query,
		key.KID, encodePrivateKey(key.PrivateKey), key.CreatedAt, key.IsActive, key.DemotedAt,
	); err != nil {
		return fmt.Errorf("failed to save signing key: %w", err)
	}
	return nil
}

func (r *SigningKeyRepository) List(ctx context.Context) ([]model.SigningKey, error) {
	const query = `
        SELECT kid, private_key_pem, created_at, is_active, demoted_at
        FROM signing_keys
        ORDER BY created_at
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list signing keys: %w", err)
	}
	defer rows.Close()

	var keys []model.SigningKey
	for rows.Next() {
		var (
			k      model.SigningKey
			keyEnc string
		)
		if err := rows.Scan(&k.KID, &keyEnc, &k.CreatedAt, &k.IsActive, &k.DemotedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signing key: %w", err)
		}
		priv, err := decodePrivateKey(keyEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode signing key %s: %w", k.KID, err)
		}
		k.PrivateKey = priv
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signing keys: %w", err)
	}
	return keys, nil
}

// MarkActive activates kid and demotes any previously active key in a single
// statement so no two keys are ever active together.
func (r *SigningKeyRepository) MarkActive(ctx context.Context, kid string, demotedAt time.Time) error {
	const query = `
        UPDATE signing_keys SET
            demoted_at = CASE WHEN kid <> $1 AND is_active THEN $2 ELSE demoted_at END,
            is_active = (kid = $1)
    `
	if _, err := r.db.Exec(ctx, query, kid, demotedAt); err != nil {
		return fmt.Errorf("failed to mark signing key active: %w", err)
	}
	return nil
}

func (r *SigningKeyRepository) Delete(ctx context.Context, kid string) error {
	const query = `DELETE FROM signing_keys WHERE kid = $1`
	if _, err := r.db.Exec(ctx, query, kid); err != nil {
		return fmt.Errorf("failed to delete signing key: %w", err)
	}
	return nil
}

func encodePrivateKey(priv *rsa.PrivateKey) string {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	}
	return string(pem.EncodeToMemory(block))
}

func decodePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
