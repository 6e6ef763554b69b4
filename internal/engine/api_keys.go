package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"

	"caseline/internal/domain"
	"caseline/internal/events"
	"caseline/internal/ids"
	"caseline/internal/repo"
)

const entityAPIKey domain.EntityKind = "api_key"

type APIKeyCreateOptions struct {
	ActorID        string
	Role           string
	OrganizationID string
	Name           string
}

// CreateAPIKey issues a key for a machine actor. The plaintext is returned
// once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actor domain.Actor, opts APIKeyCreateOptions) (domain.APIKey, string, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.APIKey{}, "", domain.NewError(domain.KindNotAuthorized, "only admins issue api keys")
	}
	role, err := domain.ParseRole(opts.Role)
	if err != nil {
		return domain.APIKey{}, "", validation(entityAPIKey, domain.TransitionCreate, err.Error())
	}
	k := domain.APIKey{
		ID:             ids.New(),
		ActorID:        strings.TrimSpace(opts.ActorID),
		Role:           role,
		OrganizationID: strings.TrimSpace(opts.OrganizationID),
		Name:           strings.TrimSpace(opts.Name),
		CreatedAt:      e.stamp(),
	}
	if k.ActorID == "" {
		return domain.APIKey{}, "", validation(entityAPIKey, domain.TransitionCreate, "actor_id is required")
	}
	if role == domain.RoleOrganization && k.OrganizationID == "" {
		return domain.APIKey{}, "", validation(entityAPIKey, domain.TransitionCreate, "organization_id is required for organization keys")
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "cl_" + hex.EncodeToString(buf)
	k.KeyHash = repo.HashAPIKey(plain)
	err = e.create(ctx, actor, entityAPIKey, k.ID, func(tx *sql.Tx) error {
		if k.OrganizationID != "" {
			if _, err := e.Repo.GetOrganization(ctx, tx, k.OrganizationID); err != nil {
				return storeErr(domain.EntityOrganization, domain.TransitionCreate, k.OrganizationID, err)
			}
		}
		return e.Repo.InsertAPIKey(ctx, tx, k)
	}, events.EventPayload{"actor_id": k.ActorID, "role": string(k.Role)})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	k.KeyHash = ""
	return k, plain, nil
}

// ListAPIKeys lists keys, optionally for one actor. Hashes are cleared.
func (e Engine) ListAPIKeys(ctx context.Context, actor domain.Actor, actorID string) ([]domain.APIKey, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.NewError(domain.KindNotAuthorized, "only admins list api keys")
	}
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.APIKey, 0, len(keys))
	for _, k := range keys {
		k.KeyHash = ""
		out = append(out, k)
	}
	return out, nil
}

func (e Engine) RevokeAPIKey(ctx context.Context, actor domain.Actor, id string) error {
	if actor.Role != domain.RoleAdmin {
		return domain.NewError(domain.KindNotAuthorized, "only admins revoke api keys")
	}
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return storeErr(entityAPIKey, domain.TransitionDelete, id, err)
	}
	return nil
}

// Principal resolves an api key to the actor it stands for.
func (e Engine) Principal(ctx context.Context, key string) (domain.Actor, error) {
	k, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return domain.Actor{}, storeErr(entityAPIKey, "authenticate", "", err)
	}
	return domain.Actor{ID: k.ActorID, Role: k.Role, OrganizationID: k.OrganizationID}, nil
}
