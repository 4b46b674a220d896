package services

import (
	"fmt"

	"teamchat/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CanPerform decides whether an actor may perform an action against a
// chat. The chat's creator and active owners bypass the explicit
// permission list entirely; everyone else needs an active membership
// whose permission list contains the action.
func CanPerform(chat *models.Chat, actorID primitive.ObjectID, perm models.Permission) bool {
	if chat.CreatedBy == actorID {
		return true
	}
	p := chat.ActiveParticipant(actorID)
	if p == nil {
		return false
	}
	if p.Role == models.RoleOwner {
		return true
	}
	return p.HasPermission(perm)
}

// applyRoleChange mutates a participant's role in place. Explicit
// permission lists are overrides that survive role changes; only when
// the change supplies no list are the new role's defaults applied.
// Owner records are immutable through this path.
func applyRoleChange(p *models.Participant, newRole models.Role, explicit []models.Permission) error {
	if p.Role == models.RoleOwner {
		return fmt.Errorf("%w: owner role cannot be changed", ErrValidation)
	}
	if newRole == models.RoleOwner {
		return fmt.Errorf("%w: owner role cannot be assigned", ErrValidation)
	}
	if !newRole.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, newRole)
	}
	p.Role = newRole
	if explicit != nil {
		p.Permissions = explicit
	} else {
		p.Permissions = models.DefaultPermissions(newRole)
	}
	return nil
}
