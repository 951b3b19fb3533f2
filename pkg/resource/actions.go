package resource

import "github.com/platinummonkey/citadel/pkg/policy"

// Secured actions guarding descriptor management. RegisterActions declares
// them once at startup against the platform's action registry.
var (
	ActionCreateDescriptor = &policy.Action{
		Identifier: "Resources.CreateDescriptor",
		Name:       "Create resource descriptor",
		Policies:   []policy.Descriptor{policy.DescDenyAll, policy.DescAllowAll, policy.DescHasRole},
	}
	ActionGetDescriptor = &policy.Action{
		Identifier: "Resources.GetDescriptor",
		Name:       "Read resource descriptor",
		Policies: []policy.Descriptor{
			policy.DescDenyAll, policy.DescAllowAll, policy.DescHasRole,
			policy.DescIsResourceOwner, policy.DescIsAllowedBySharing,
		},
	}
	ActionManageOwners = &policy.Action{
		Identifier: "Resources.ManageOwners",
		Name:       "Manage resource owners",
		Policies: []policy.Descriptor{
			policy.DescDenyAll, policy.DescHasRole, policy.DescIsResourceOwner,
		},
	}
	ActionManageSharing = &policy.Action{
		Identifier: "Resources.ManageSharing",
		Name:       "Manage resource sharing",
		Policies: []policy.Descriptor{
			policy.DescDenyAll, policy.DescHasRole, policy.DescIsResourceOwner,
		},
	}
	ActionDeleteDescriptor = &policy.Action{
		Identifier: "Resources.DeleteDescriptor",
		Name:       "Delete resource descriptor",
		Policies: []policy.Descriptor{
			policy.DescDenyAll, policy.DescHasRole, policy.DescIsResourceOwner,
		},
	}
)

// RegisterActions declares the descriptor-management actions.
func RegisterActions(reg *policy.Registry) error {
	for _, a := range []*policy.Action{
		ActionCreateDescriptor,
		ActionGetDescriptor,
		ActionManageOwners,
		ActionManageSharing,
		ActionDeleteDescriptor,
	} {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
