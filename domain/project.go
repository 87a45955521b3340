package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role defines what a member may do within a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Member associates a user with a role inside a project.
type Member struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Project owns boards. The owner is always present exactly once in Members
// with RoleOwner and cannot be changed or removed through member management.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner"`
	Members     []Member  `json:"members"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewProject creates a project owned by ownerID.
func NewProject(name, description, ownerID string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is required: %w", ErrValidation)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("project owner is required: %w", ErrValidation)
	}
	now := time.Now().UTC()
	return &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		Members:     []Member{{UserID: ownerID, Role: RoleOwner}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Member returns the membership record for userID.
func (p *Project) Member(userID string) (Member, bool) {
	for _, m := range p.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// IsMember reports whether userID belongs to the project.
func (p *Project) IsMember(userID string) bool {
	_, ok := p.Member(userID)
	return ok
}

// CanAdminister reports whether userID may perform destructive or
// administrative operations on the project.
func (p *Project) CanAdminister(userID string) bool {
	m, ok := p.Member(userID)
	return ok && (m.Role == RoleOwner || m.Role == RoleAdmin)
}

// AddMember adds userID with the given role. The owner role is reserved for
// the project creator and cannot be granted here.
func (p *Project) AddMember(userID string, role Role) error {
	if userID == "" {
		return fmt.Errorf("member user id is required: %w", ErrValidation)
	}
	if !role.valid() || role == RoleOwner {
		return fmt.Errorf("invalid member role %q: %w", role, ErrValidation)
	}
	if p.IsMember(userID) {
		return fmt.Errorf("user %s is already a member: %w", userID, ErrValidation)
	}
	p.Members = append(p.Members, Member{UserID: userID, Role: role})
	return nil
}

// ChangeRole updates the role of an existing member. The owner's role is
// immutable.
func (p *Project) ChangeRole(userID string, role Role) error {
	if !role.valid() || role == RoleOwner {
		return fmt.Errorf("invalid member role %q: %w", role, ErrValidation)
	}
	if userID == p.OwnerID {
		return fmt.Errorf("owner role is immutable: %w", ErrValidation)
	}
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			p.Members[i].Role = role
			return nil
		}
	}
	return fmt.Errorf("member %s: %w", userID, ErrNotFound)
}

// RemoveMember drops a member from the project. The owner cannot be removed.
func (p *Project) RemoveMember(userID string) error {
	if userID == p.OwnerID {
		return fmt.Errorf("owner cannot be removed: %w", ErrValidation)
	}
	for i := range p.Members {
		if p.Members[i].UserID == userID {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %s: %w", userID, ErrNotFound)
}
