package provider

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hashicorp/terraform-plugin-framework-validators/datasourcevalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/provider/helpers"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &EntryDataSource{}
var _ datasource.DataSourceWithConfigValidators = &EntryDataSource{}

var sidPattern = regexp.MustCompile(`^S-\d+-\d+(-\d+)*$`)

func NewEntryDataSource() datasource.DataSource {
	return &EntryDataSource{}
}

// EntryDataSource looks up a single directory entry.
type EntryDataSource struct {
	session *ldapclient.Session
}

// EntryDataSourceModel describes the data source data model.
type EntryDataSourceModel struct {
	// Lookup methods (exactly one)
	Filter     types.String `tfsdk:"filter"`
	ObjectGUID types.String `tfsdk:"object_guid"`
	ObjectSID  types.String `tfsdk:"object_sid"`

	Attributes        types.List `tfsdk:"attributes"`
	DecodeIdentifiers types.Bool `tfsdk:"decode_identifiers"`

	// Output
	ID          types.String `tfsdk:"id"`
	DN          types.String `tfsdk:"dn"`
	Found       types.Bool   `tfsdk:"found"`
	EntryValues types.Map    `tfsdk:"values"`
}

func (d *EntryDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_entry"
}

func (d *EntryDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Retrieves the first directory entry matching a filter, an objectGUID or an objectSid. " +
			"A lookup that matches nothing is not an error: `found` is set to `false`.",

		Attributes: map[string]schema.Attribute{
			"filter": schema.StringAttribute{
				MarkdownDescription: "LDAP search filter, e.g. `(uid=jdoe)`. Exactly one of `filter`, `object_guid` or `object_sid` must be set.",
				Optional:            true,
				Validators: []validator.String{
					validators.IsValidFilter(),
				},
			},
			"object_guid": schema.StringAttribute{
				MarkdownDescription: "Active Directory objectGUID in string form, e.g. `6ba7b810-9dad-11d1-80b4-00c04fd430c8`.",
				Optional:            true,
			},
			"object_sid": schema.StringAttribute{
				MarkdownDescription: "Active Directory objectSid in string form, e.g. `S-1-5-21-123456789-123456789-123456789-1001`.",
				Optional:            true,
				Validators: []validator.String{
					stringvalidator.RegexMatches(sidPattern, "must be a SID in S-R-I-S... form"),
				},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to fetch. Defaults to all user attributes (`*`).",
				ElementType:         types.StringType,
				Optional:            true,
			},
			"decode_identifiers": schema.BoolAttribute{
				MarkdownDescription: "Render binary `objectGUID` and `objectSid` values in their string forms. Defaults to `true`.",
				Optional:            true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "The DN of the entry, or the lookup key when nothing matched.",
				Computed:            true,
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the entry found.",
				Computed:            true,
			},
			"found": schema.BoolAttribute{
				MarkdownDescription: "Whether an entry matched.",
				Computed:            true,
			},
			"values": schema.MapAttribute{
				MarkdownDescription: "Attribute values of the entry, each as a list of strings.",
				ElementType:         helpers.AttributesType.ElemType,
				Computed:            true,
			},
		},
	}
}

// ConfigValidators implements datasource.DataSourceWithConfigValidators.
func (d *EntryDataSource) ConfigValidators(ctx context.Context) []datasource.ConfigValidator {
	return []datasource.ConfigValidator{
		datasourcevalidator.ExactlyOneOf(
			path.MatchRoot("filter"),
			path.MatchRoot("object_guid"),
			path.MatchRoot("object_sid"),
		),
	}
}

func (d *EntryDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
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

func (d *EntryDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data EntryDataSourceModel

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ldap_entry", "read", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	filter, err := entryLookupFilter(&data)
	if err != nil {
		resp.Diagnostics.AddError("Invalid Lookup", err.Error())
		return
	}

	attrs, diags := helpers.StringListToSlice(ctx, data.Attributes)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	var callback ldapclient.EntryCallback
	if data.DecodeIdentifiers.IsNull() || data.DecodeIdentifiers.ValueBool() {
		callback = ldapclient.DecodeIdentifiers
	}

	tflog.Debug(ctx, "Looking up LDAP entry", map[string]any{
		"filter":     filter,
		"attributes": attrs,
	})

	entry, err := d.session.GetEntry(ctx, filter, attrs, callback)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading LDAP Entry",
			fmt.Sprintf("Could not search for %s: %s", filter, err.Error()),
		)
		return
	}

	resp.Diagnostics.Append(setEntryModel(ctx, &data, filter, entry)...)
	if resp.Diagnostics.HasError() {
		return
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// entryLookupFilter builds the search filter for whichever lookup method is set.
func entryLookupFilter(data *EntryDataSourceModel) (string, error) {
	switch {
	case !data.ObjectGUID.IsNull() && data.ObjectGUID.ValueString() != "":
		return ldapclient.NewGUIDHandler().GUIDToSearchFilter(data.ObjectGUID.ValueString())
	case !data.ObjectSID.IsNull() && data.ObjectSID.ValueString() != "":
		return ldapclient.NewSIDHandler().SIDToSearchFilter(data.ObjectSID.ValueString())
	case !data.Filter.IsNull() && data.Filter.ValueString() != "":
		return data.Filter.ValueString(), nil
	default:
		return "", fmt.Errorf("one of filter, object_guid or object_sid must be set")
	}
}

// setEntryModel fills the computed fields from entry; a nil entry means nothing matched.
func setEntryModel(ctx context.Context, data *EntryDataSourceModel, lookup string, entry *ldapclient.Entry) diag.Diagnostics {
	if entry == nil {
		data.ID = types.StringValue(lookup)
		data.DN = types.StringNull()
		data.Found = types.BoolValue(false)
		data.EntryValues = types.MapNull(helpers.AttributesType.ElemType)
		return nil
	}

	values, diags := helpers.AttributesToMap(ctx, helpers.EntryAttributes(entry))
	if diags.HasError() {
		return diags
	}

	data.ID = types.StringValue(entry.DN)
	data.DN = types.StringValue(entry.DN)
	data.Found = types.BoolValue(true)
	data.EntryValues = values
	return diags
}
