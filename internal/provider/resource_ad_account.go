package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/booldefault"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &ADAccountResource{}
var _ resource.ResourceWithImportState = &ADAccountResource{}

func NewADAccountResource() resource.Resource {
	return &ADAccountResource{}
}

// ADAccountResource manages the activation state and password of an existing Active Directory user.
type ADAccountResource struct {
	ad *ldapclient.ActiveDirectory
}

// ADAccountResourceModel describes the resource data model.
type ADAccountResourceModel struct {
	ID       types.String `tfsdk:"id"`       // User DN (computed)
	CN       types.String `tfsdk:"cn"`       // Required - common name used for the lookup
	Enabled  types.Bool   `tfsdk:"enabled"`  // Optional+Computed+Default: true
	Password types.String `tfsdk:"password"` // Optional, sensitive, never read back
}

func (r *ADAccountResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_ad_account"
}

func (r *ADAccountResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Enables or disables an existing Active Directory user account and optionally sets its password. " +
			"The user is found by `cn` below the provider's base DN. Destroying the resource leaves the account as it is.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the user.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"cn": schema.StringAttribute{
				MarkdownDescription: "The common name of the user account.",
				Required:            true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"enabled": schema.BoolAttribute{
				MarkdownDescription: "Whether the account is enabled. Writes `userAccountControl` as a normal account " +
					"whose password does not expire. Defaults to `true`.",
				Optional: true,
				Computed: true,
				Default:  booldefault.StaticBool(true),
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "New password for the account, written to `unicodePwd`. The server requires an LDAPS connection for this. " +
					"The password cannot be read back, so changes made outside Terraform are not detected.",
				Optional:  true,
				Sensitive: true,
			},
		},
	}
}

func (r *ADAccountResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	providerData, ok := req.ProviderData.(*ldapclient.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Resource Configure Type",
			fmt.Sprintf("Expected *ldapclient.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	r.ad = providerData.AD
}

func (r *ADAccountResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data ADAccountResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_ad_account", "create", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	cn := data.CN.ValueString()

	dn, err := r.ad.UserDN(ctx, cn)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Finding AD User",
			fmt.Sprintf("Could not find user %s: %s", cn, err.Error()),
		)
		return
	}

	tflog.Debug(ctx, "Managing AD account", map[string]any{
		"cn":      cn,
		"dn":      dn,
		"enabled": data.Enabled.ValueBool(),
	})

	if err := r.ad.ToggleAccountActivation(ctx, cn, data.Enabled.ValueBool()); err != nil {
		resp.Diagnostics.AddError(
			"Error Updating AD Account",
			fmt.Sprintf("Could not change activation of %s: %s", cn, err.Error()),
		)
		return
	}

	if !data.Password.IsNull() {
		if err := r.ad.SetPassword(ctx, cn, data.Password.ValueString()); err != nil {
			resp.Diagnostics.AddAttributeError(
				path.Root("password"),
				"Error Setting AD Password",
				fmt.Sprintf("Could not set the password of %s: %s", cn, err.Error()),
			)
			return
		}
	}

	data.ID = types.StringValue(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ADAccountResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data ADAccountResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_ad_account", "read", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	cn := data.CN.ValueString()

	dn, err := r.ad.UserDN(ctx, cn)
	if err == nil {
		var enabled bool
		enabled, err = r.ad.AccountEnabled(ctx, cn)
		data.Enabled = types.BoolValue(enabled)
	}
	if err != nil {
		if ldapclient.IsNotFoundError(err) {
			tflog.Debug(ctx, "AD user not found, removing from state", map[string]any{"cn": cn})
			resp.State.RemoveResource(ctx)
			return
		}
		resp.Diagnostics.AddError(
			"Error Reading AD Account",
			fmt.Sprintf("Could not read user %s: %s", cn, err.Error()),
		)
		return
	}

	data.ID = types.StringValue(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *ADAccountResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state ADAccountResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_ad_account", "update", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	cn := plan.CN.ValueString()

	if !plan.Enabled.Equal(state.Enabled) {
		tflog.Debug(ctx, "Changing AD account activation", map[string]any{
			"cn":      cn,
			"enabled": plan.Enabled.ValueBool(),
		})
		if err := r.ad.ToggleAccountActivation(ctx, cn, plan.Enabled.ValueBool()); err != nil {
			resp.Diagnostics.AddError(
				"Error Updating AD Account",
				fmt.Sprintf("Could not change activation of %s: %s", cn, err.Error()),
			)
			return
		}
	}

	if !plan.Password.IsNull() && !plan.Password.Equal(state.Password) {
		if err := r.ad.SetPassword(ctx, cn, plan.Password.ValueString()); err != nil {
			resp.Diagnostics.AddAttributeError(
				path.Root("password"),
				"Error Setting AD Password",
				fmt.Sprintf("Could not set the password of %s: %s", cn, err.Error()),
			)
			return
		}
	}

	plan.ID = state.ID

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

// Delete forgets the account; the directory is not modified.
func (r *ADAccountResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data ADAccountResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_ad_account", "delete", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "Removing AD account from state", map[string]any{
		"cn": data.CN.ValueString(),
	})
}

func (r *ADAccountResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	resource.ImportStatePassthroughID(ctx, path.Root("cn"), req, resp)
}
