package auth

import "strings"

// Action enumerates what can be done to a resource type.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionManage Action = "manage"
)

// ParseAction normalizes and validates an action string.
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionCreate:
		return ActionCreate, true
	case ActionRead:
		return ActionRead, true
	case ActionUpdate:
		return ActionUpdate, true
	case ActionDelete:
		return ActionDelete, true
	case ActionManage:
		return ActionManage, true
	default:
		return "", false
	}
}

// PermissionSet maps lower-cased resource types to the actions allowed on
// them. It is the effective capability set of one user.
type PermissionSet map[string][]Action

// Has reports whether the set allows the action on the resource type.
// Resource type matching is case-insensitive.
func (s PermissionSet) Has(resourceType string, action Action) bool {
	for _, a := range s[strings.ToLower(strings.TrimSpace(resourceType))] {
		if a == action {
			return true
		}
	}
	return false
}

// ResolvePermissions overlays per-user overrides onto role defaults. A
// granted override adds the action if absent; a revoking override removes it
// if present. Overrides target distinct (resource type, action) pairs, so
// application order cannot change the result.
func ResolvePermissions(roleDefaults PermissionSet, overrides []Override) PermissionSet {
	result := make(PermissionSet, len(roleDefaults))
	for resource, actions := range roleDefaults {
		result[strings.ToLower(resource)] = append([]Action(nil), actions...)
	}
	for _, o := range overrides {
		resource := strings.ToLower(strings.TrimSpace(o.ResourceType))
		if o.Granted {
			if !result.Has(resource, o.Action) {
				result[resource] = append(result[resource], o.Action)
			}
			continue
		}
		actions := result[resource]
		for i, a := range actions {
			if a == o.Action {
				result[resource] = append(actions[:i:i], actions[i+1:]...)
				break
			}
		}
	}
	return result
}
