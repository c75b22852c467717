package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

var _ datasource.DataSource = &WhoAmIDataSource{}

func NewWhoAmIDataSource() datasource.DataSource {
	return &WhoAmIDataSource{}
}

// WhoAmIDataSource reports the identity the server associates with the
// provider's session (RFC 4532).
type WhoAmIDataSource struct {
	session *ldapclient.Session
}

type WhoAmIDataSourceModel struct {
	ID                types.String `tfsdk:"id"`
	AuthzID           types.String `tfsdk:"authz_id"`
	Format            types.String `tfsdk:"format"`
	DN                types.String `tfsdk:"dn"`
	UserPrincipalName types.String `tfsdk:"upn"`
	SAMAccountName    types.String `tfsdk:"sam_account_name"`
	SID               types.String `tfsdk:"sid"`
	RootDN            types.String `tfsdk:"root_dn"`
	BindDN            types.String `tfsdk:"bind_dn"`
	BaseDN            types.String `tfsdk:"base_dn"`
}

func (d *WhoAmIDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_whoami"
}

func (d *WhoAmIDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	identity := func(kind, example string) schema.StringAttribute {
		return schema.StringAttribute{
			MarkdownDescription: fmt.Sprintf("The identity as a %s (e.g., `%s`). Null for other formats.", kind, example),
			Computed:            true,
		}
	}

	resp.Schema = schema.Schema{
		MarkdownDescription: "Asks the server who the provider is bound as, using the \"Who Am I?\" extended operation (RFC 4532). " +
			"Takes no arguments.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `authz_id`.",
				Computed:            true,
			},
			"authz_id": schema.StringAttribute{
				MarkdownDescription: "Authorization identity exactly as returned, including any `dn:` or `u:` prefix.",
				Computed:            true,
			},
			"format": schema.StringAttribute{
				MarkdownDescription: "Shape of `authz_id`: one of `dn`, `upn`, `sam`, `sid`, `empty` or `unknown`.",
				Computed:            true,
			},
			"dn":               identity("distinguished name", "CN=svc-terraform,CN=Users,DC=example,DC=com"),
			"upn":              identity("user principal name", "svc-terraform@example.com"),
			"sam_account_name": identity("down-level logon name", "EXAMPLE\\svc-terraform"),
			"sid":              identity("security identifier", "S-1-5-21-3623811015-3361044348-30300820-1013"),
			"root_dn": schema.StringAttribute{
				MarkdownDescription: "The `dc=` suffix of `authz_id` (e.g., `DC=example,DC=com`). Null when it has none.",
				Computed:            true,
			},
			"bind_dn": schema.StringAttribute{
				MarkdownDescription: "The DN the provider bound with, as configured.",
				Computed:            true,
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "The base DN searches start from, configured or derived from `root_dn`.",
				Computed:            true,
			},
		},
	}
}

func (d *WhoAmIDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	providerData, ok := req.ProviderData.(*ldapclient.ProviderData)
	if !ok {
		resp.Diagnostics.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *ldapclient.ProviderData, got: %T. Please report this issue to the provider developers.", req.ProviderData),
		)
		return
	}

	d.session = providerData.Session
}

func (d *WhoAmIDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ldap_whoami", "read", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	result, err := d.session.WhoAmI(ctx)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Performing WhoAmI Operation",
			"Could not determine the bound identity: "+err.Error(),
		)
		return
	}

	tflog.Debug(ctx, "Resolved bound identity", map[string]any{
		"authz_id": result.AuthzID,
		"format":   result.Format,
	})

	data := WhoAmIDataSourceModel{
		ID:                types.StringValue(result.AuthzID),
		AuthzID:           types.StringValue(result.AuthzID),
		Format:            types.StringValue(result.Format),
		DN:                optionalString(result.DN),
		UserPrincipalName: optionalString(result.UserPrincipalName),
		SAMAccountName:    optionalString(result.SAMAccountName),
		SID:               optionalString(result.SID),
		RootDN:            optionalString(result.RootDN()),
		BindDN:            optionalString(d.session.BindDN()),
		BaseDN:            types.StringValue(d.session.SearchOptions().BaseDN()),
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// optionalString maps "" to null.
func optionalString(s string) types.String {
	if s == "" {
		return types.StringNull()
	}
	return types.StringValue(s)
}
