package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
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
var _ datasource.DataSource = &EntriesDataSource{}

func NewEntriesDataSource() datasource.DataSource {
	return &EntriesDataSource{}
}

// EntriesDataSource runs a (paged) search below the provider's base DN.
type EntriesDataSource struct {
	session *ldapclient.Session
}

// EntriesDataSourceModel describes the data source data model.
type EntriesDataSourceModel struct {
	// Search configuration
	Filter     types.String `tfsdk:"filter"`
	Attributes types.List   `tfsdk:"attributes"`
	Scope      types.String `tfsdk:"scope"`
	PageSize   types.Int64  `tfsdk:"page_size"`
	TrackBy    types.String `tfsdk:"track_by"`

	// Output
	ID      types.String `tfsdk:"id"`
	Entries types.List   `tfsdk:"entries"`
	Tracked types.Map    `tfsdk:"tracked"`
	Count   types.Int64  `tfsdk:"count"`
}

func (d *EntriesDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_entries"
}

func (d *EntriesDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Searches the directory below the provider's base DN and returns every matching entry. " +
			"Large result sets can be fetched in pages with `page_size`.",

		Attributes: map[string]schema.Attribute{
			"filter": schema.StringAttribute{
				MarkdownDescription: "LDAP search filter, e.g. `(objectClass=person)`.",
				Required:            true,
				Validators: []validator.String{
					validators.IsValidFilter(),
				},
			},
			"attributes": schema.ListAttribute{
				MarkdownDescription: "Attributes to fetch. Defaults to all user attributes (`*`).",
				ElementType:         types.StringType,
				Optional:            true,
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "`subtree` searches the whole tree below the base DN; `onelevel` lists its immediate children. " +
					"Defaults to the provider's scope.",
				Optional: true,
				Validators: []validator.String{
					validators.IsSearchScope(),
				},
			},
			"page_size": schema.Int64Attribute{
				MarkdownDescription: "Fetch results in pages of this many entries using the simple paged results control.",
				Optional:            true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"track_by": schema.StringAttribute{
				MarkdownDescription: "Index the results by the first value of this attribute (`dn` for the DN). " +
					"When several entries share a key, the last one returned wins.",
				Optional: true,
			},
			"id": schema.StringAttribute{
				MarkdownDescription: "The search filter.",
				Computed:            true,
			},
			"entries": schema.ListNestedAttribute{
				MarkdownDescription: "Matching entries. Server order is kept unless `track_by` is set, in which case entries are sorted by DN.",
				Computed:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"dn": schema.StringAttribute{
							MarkdownDescription: "The distinguished name of the entry.",
							Computed:            true,
						},
						"attributes": schema.MapAttribute{
							MarkdownDescription: "Attribute values, each as a list of strings.",
							ElementType:         helpers.AttributesType.ElemType,
							Computed:            true,
						},
					},
				},
			},
			"tracked": schema.MapAttribute{
				MarkdownDescription: "Map from `track_by` key to entry DN. Empty unless `track_by` is set.",
				ElementType:         types.StringType,
				Computed:            true,
			},
			"count": schema.Int64Attribute{
				MarkdownDescription: "Number of entries returned.",
				Computed:            true,
			},
		},
	}
}

func (d *EntriesDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
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

func (d *EntriesDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	ctx = initializeLogging(ctx)

	var data EntriesDataSourceModel

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ldap_entries", "read", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	attrs, diags := helpers.StringListToSlice(ctx, data.Attributes)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	filter := data.Filter.ValueString()
	opts := entriesSearchOptions(&data)

	scope := d.session.SearchOptions().Scope()
	if !data.Scope.IsNull() {
		parsed, err := ldapclient.ParseScope(data.Scope.ValueString())
		if err != nil {
			resp.Diagnostics.AddAttributeError(path.Root("scope"), "Invalid Search Scope", err.Error())
			return
		}
		scope = parsed
	}

	search := d.session.Search
	if scope == ldapclient.ScopeOneLevel {
		search = d.session.List
	}

	tflog.Debug(ctx, "Searching LDAP entries", map[string]any{
		"filter":    filter,
		"scope":     scope.String(),
		"page_size": data.PageSize.ValueInt64(),
		"track_by":  data.TrackBy.ValueString(),
	})

	result, err := search(ctx, filter, attrs, opts...)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Searching LDAP Entries",
			fmt.Sprintf("Could not search for %s: %s", filter, err.Error()),
		)
		return
	}

	resp.Diagnostics.Append(setEntriesModel(ctx, &data, result)...)
	if resp.Diagnostics.HasError() {
		return
	}

	tflog.Debug(ctx, "LDAP entries search completed", map[string]any{
		"count": data.Count.ValueInt64(),
	})

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// entriesSearchOptions maps the optional paging and tracking settings onto search options.
func entriesSearchOptions(data *EntriesDataSourceModel) []ldapclient.SearchOption {
	var opts []ldapclient.SearchOption
	if !data.PageSize.IsNull() && !data.PageSize.IsUnknown() {
		opts = append(opts, ldapclient.WithPageSize(int(data.PageSize.ValueInt64())))
	}
	if trackBy := data.TrackBy.ValueString(); trackBy != "" {
		opts = append(opts, ldapclient.WithTrackBy(trackBy))
	}
	return opts
}

// setEntriesModel fills the computed fields from result. A nil result means nothing matched.
func setEntriesModel(ctx context.Context, data *EntriesDataSourceModel, result *ldapclient.SearchResult) diag.Diagnostics {
	var diags diag.Diagnostics

	entries := result.All()
	tracked := map[string]string{}
	if result != nil && result.Tracked != nil {
		for key, entry := range result.Tracked {
			tracked[key] = entry.DN
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].DN < entries[j].DN })
	}

	list, d := helpers.EntriesToList(ctx, entries)
	diags.Append(d...)
	if diags.HasError() {
		return diags
	}

	trackedMap, d := types.MapValueFrom(ctx, types.StringType, tracked)
	diags.Append(d...)
	if diags.HasError() {
		return diags
	}

	data.ID = types.StringValue(data.Filter.ValueString())
	data.Entries = list
	data.Tracked = trackedMap
	data.Count = types.Int64Value(int64(len(entries)))
	return diags
}
