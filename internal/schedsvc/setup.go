package schedsvc

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/google/uuid"
)

// ActionDef describes one action offered by the provider.
type ActionDef struct {
	Name        string
	Description string
	// CreateBefore and DeleteAfter are in hours relative to the event.
	CreateBefore int
	DeleteAfter  int
}

type Provider struct {
	Platform    string
	Credential  bool
	Name        string
	Password    string
	Description string
	Actions     []ActionDef
}

// Registration holds the ids the service assigned.
type Registration struct {
	PlatformID int64
	ProviderID int64
	ActionIDs  map[string]int64
}

type platform struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Credential bool   `json:"credential"`
	Deleted    bool   `json:"deleted"`
}

type actionProvider struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Password    string  `json:"password,omitempty"`
	PlatformID  int64   `json:"platform_id"`
	Description *string `json:"description"`
	Deleted     bool    `json:"deleted"`
}

type action struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	ActionProviderID int64   `json:"action_provider_id"`
	Description      *string `json:"description"`
	CreateBefore     int     `json:"create_before"`
	DeleteAfter      int     `json:"delete_after"`
	Deleted          bool    `json:"deleted"`
}

// Setup registers the platform, the provider and its actions. Each step
// tolerates an existing entry and looks its id up by name instead.
func (c *Client) Setup(ctx context.Context, p Provider) (Registration, error) {
	reg := Registration{ActionIDs: map[string]int64{}}

	pl := platform{ID: newID(), Name: p.Platform, Credential: p.Credential}
	if err := c.create(ctx, "/v1/ap/platform", pl); err != nil {
		return reg, fmt.Errorf("create platform: %w", err)
	}
	var platforms []platform
	if err := c.getJSON(ctx, "/v1/ap/platform", &platforms); err != nil {
		return reg, fmt.Errorf("list platforms: %w", err)
	}
	for _, existing := range platforms {
		if existing.Name == p.Platform {
			reg.PlatformID = existing.ID
		}
	}
	if reg.PlatformID == 0 {
		return reg, fmt.Errorf("platform %q not found after create", p.Platform)
	}

	desc := p.Description
	ap := actionProvider{ID: newID(), Name: p.Name, Password: p.Password, PlatformID: reg.PlatformID, Description: &desc}
	if err := c.create(ctx, "/v1/ap/action_provider", ap); err != nil {
		return reg, fmt.Errorf("create action provider: %w", err)
	}
	var self actionProvider
	if err := c.getJSON(ctx, "/v1/ap/action_provider", &self); err != nil {
		return reg, fmt.Errorf("get action provider: %w", err)
	}
	reg.ProviderID = self.ID

	for _, a := range p.Actions {
		d := a.Description
		body := action{
			ID:               newID(),
			Name:             a.Name,
			ActionProviderID: reg.ProviderID,
			Description:      &d,
			CreateBefore:     a.CreateBefore,
			DeleteAfter:      a.DeleteAfter,
		}
		if err := c.create(ctx, "/v1/ap/action", body); err != nil {
			return reg, fmt.Errorf("create action %q: %w", a.Name, err)
		}
	}
	var actions []action
	if err := c.getJSON(ctx, "/v1/ap/action", &actions); err != nil {
		return reg, fmt.Errorf("list actions: %w", err)
	}
	for _, a := range actions {
		reg.ActionIDs[a.Name] = a.ID
	}
	return reg, nil
}

// create posts v; a conflict means it already exists.
func (c *Client) create(ctx context.Context, path string, v any) error {
	jb, err := json.Marshal(v)
	if err != nil {
		return err
	}
	status, body, err := c.do(ctx, http.MethodPost, path, jb)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		return nil
	}
	return statusErr("POST "+path, status, body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusErr("GET "+path, status, body)
	}
	return json.Unmarshal(body, out)
}

// newID returns a random positive id; the service expects clients to choose
// ids for new rows.
func newID() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint64(u[:8]) & math.MaxInt64)
}
