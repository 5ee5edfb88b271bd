package db

import (
	"context"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id bigserial PRIMARY KEY,
    email text,
    username text NOT NULL,
    avatar_url text,
    is_active boolean NOT NULL DEFAULT true,
    created_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS oauth_accounts (
    id bigserial PRIMARY KEY,
    user_id bigint NOT NULL REFERENCES users(id),
    provider varchar(50) NOT NULL,
    provider_user_id varchar(100) NOT NULL,
    provider_username varchar(100),
    access_token text,
    refresh_token text,
    token_expires_at timestamptz,
    raw_data jsonb,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW(),
    CONSTRAINT unique_provider_user
        UNIQUE (provider, provider_user_id)
);

CREATE INDEX IF NOT EXISTS oauth_accounts_user_id_idx
ON oauth_accounts (user_id);
`

// Migrate creates the account tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.ExecContext(ctx, schema)
	return err
}
