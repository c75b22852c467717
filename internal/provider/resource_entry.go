package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework-validators/mapvalidator"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/provider/helpers"
	customtypes "github.com/isometry/terraform-provider-ldap/internal/provider/types"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ resource.Resource = &EntryResource{}
var _ resource.ResourceWithImportState = &EntryResource{}

func NewEntryResource() resource.Resource {
	return &EntryResource{}
}

// EntryResource manages one directory entry and the attributes listed in its configuration.
type EntryResource struct {
	session *ldapclient.Session
}

// EntryResourceModel describes the resource data model.
type EntryResourceModel struct {
	ID         types.String   `tfsdk:"id"`         // Same as dn
	DN         customtypes.DN `tfsdk:"dn"`         // Required, forces replacement
	Attributes types.Map      `tfsdk:"attributes"` // map(list(string))
}

func (r *EntryResource) Metadata(ctx context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_entry"
}

func (r *EntryResource) Schema(ctx context.Context, req resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Manages a directory entry. Only the attributes listed in `attributes` are managed; " +
			"other attributes of the entry are left alone.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the entry.",
				Computed:            true,
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.UseStateForUnknown(),
				},
			},
			"dn": schema.StringAttribute{
				MarkdownDescription: "The distinguished name of the entry (e.g., `uid=jdoe,ou=People,dc=example,dc=com`). Changing it recreates the entry.",
				Required:            true,
				CustomType:          customtypes.DNType{},
				PlanModifiers: []planmodifier.String{
					stringplanmodifier.RequiresReplace(),
				},
			},
			"attributes": schema.MapAttribute{
				MarkdownDescription: "Attribute values, each as a list of strings, e.g. `{ objectClass = [\"top\", \"person\"], cn = [\"John Doe\"] }`. " +
					"Value order is not significant.",
				ElementType: helpers.AttributesType.ElemType,
				Required:    true,
				Validators: []validator.Map{
					mapvalidator.SizeAtLeast(1),
				},
			},
		},
	}
}

func (r *EntryResource) Configure(ctx context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
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

	r.session = providerData.Session
}

func (r *EntryResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var data EntryResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_entry", "create", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Plan.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.DN.ValueString()
	attrs, err := helpers.MapToAttributes(ctx, data.Attributes)
	if err != nil {
		resp.Diagnostics.AddAttributeError(path.Root("attributes"), "Invalid Attributes", err.Error())
		return
	}

	tflog.Debug(ctx, "Creating LDAP entry", map[string]any{
		"dn":         dn,
		"attributes": len(attrs),
	})

	if err := r.session.Add(ctx, dn, attrs); err != nil {
		summary := "Error Creating LDAP Entry"
		if ldapclient.IsConflictError(err) {
			summary = "LDAP Entry Already Exists"
		}
		resp.Diagnostics.AddError(summary, fmt.Sprintf("Could not create %s: %s", dn, err.Error()))
		return
	}

	data.ID = types.StringValue(dn)

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *EntryResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var data EntryResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_entry", "read", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()
	known, err := helpers.MapToAttributes(ctx, data.Attributes)
	if err != nil {
		resp.Diagnostics.AddError("Invalid State", err.Error())
		return
	}

	names := sortedNames(known)

	tflog.Debug(ctx, "Reading LDAP entry", map[string]any{
		"dn":         dn,
		"attributes": names,
	})

	entry, err := r.session.ReadEntry(ctx, dn, names)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Reading LDAP Entry",
			fmt.Sprintf("Could not read %s: %s", dn, err.Error()),
		)
		return
	}
	if entry == nil {
		tflog.Debug(ctx, "LDAP entry not found, removing from state", map[string]any{"dn": dn})
		resp.State.RemoveResource(ctx)
		return
	}

	attributes, diags := helpers.AttributesToMap(ctx, reconcileAttributes(known, entry))
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.DN = customtypes.NewDNValue(entry.DN)
	data.Attributes = attributes

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

func (r *EntryResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan, state EntryResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_entry", "update", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := state.ID.ValueString()

	want, err := helpers.MapToAttributes(ctx, plan.Attributes)
	if err != nil {
		resp.Diagnostics.AddAttributeError(path.Root("attributes"), "Invalid Attributes", err.Error())
		return
	}
	have, err := helpers.MapToAttributes(ctx, state.Attributes)
	if err != nil {
		resp.Diagnostics.AddError("Invalid State", err.Error())
		return
	}

	batch := planEntryChanges(have, want)
	if batch.Len() == 0 {
		tflog.Debug(ctx, "No attribute changes for LDAP entry", map[string]any{"dn": dn})
	} else {
		tflog.Debug(ctx, "Updating LDAP entry", map[string]any{
			"dn":      dn,
			"changes": batch.Len(),
		})

		if err := r.session.ModifyBatch(ctx, dn, batch); err != nil {
			resp.Diagnostics.AddError(
				"Error Updating LDAP Entry",
				fmt.Sprintf("Could not modify %s: %s", dn, err.Error()),
			)
			return
		}
	}

	plan.ID = state.ID

	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *EntryResource) Delete(ctx context.Context, req resource.DeleteRequest, resp *resource.DeleteResponse) {
	var data EntryResourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogResourceOperation(ctx, "ldap_entry", "delete", nil)
	defer func() { logCompletion(firstError(resp.Diagnostics)) }()

	resp.Diagnostics.Append(req.State.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	dn := data.ID.ValueString()

	tflog.Debug(ctx, "Deleting LDAP entry", map[string]any{"dn": dn})

	if err := r.session.Delete(ctx, dn); err != nil {
		if ldapclient.IsNotFoundError(err) {
			tflog.Debug(ctx, "LDAP entry already gone", map[string]any{"dn": dn})
			return
		}
		resp.Diagnostics.AddError(
			"Error Deleting LDAP Entry",
			fmt.Sprintf("Could not delete %s: %s", dn, err.Error()),
		)
	}
}

// ImportState accepts a DN, or an Active Directory objectGUID that is resolved to its DN.
// Imported entries manage every user attribute the server returns.
func (r *EntryResource) ImportState(ctx context.Context, req resource.ImportStateRequest, resp *resource.ImportStateResponse) {
	importID := strings.TrimSpace(req.ID)

	tflog.Debug(ctx, "Importing LDAP entry", map[string]any{
		"import_id": importID,
	})

	var (
		entry *ldapclient.Entry
		err   error
	)
	if guid := ldapclient.NewGUIDHandler(); guid.IsValidGUID(importID) {
		var filter string
		filter, err = guid.GUIDToSearchFilter(importID)
		if err == nil {
			entry, err = r.session.GetEntry(ctx, filter, nil, nil)
		}
	} else {
		entry, err = r.session.ReadEntry(ctx, importID, nil)
	}
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Importing LDAP Entry",
			fmt.Sprintf("Could not read %s: %s", importID, err.Error()),
		)
		return
	}
	if entry == nil {
		resp.Diagnostics.AddError(
			"LDAP Entry Not Found",
			fmt.Sprintf("No entry matches %s.", importID),
		)
		return
	}

	attributes, diags := helpers.AttributesToMap(ctx, helpers.EntryAttributes(entry))
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data := EntryResourceModel{
		ID:         types.StringValue(entry.DN),
		DN:         customtypes.NewDNValue(entry.DN),
		Attributes: attributes,
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// reconcileAttributes returns the managed attributes as the server now holds them.
// Attributes whose values only differ in order keep the configured order; attributes
// that disappeared from the server are dropped so the next plan restores them.
func reconcileAttributes(known map[string][]string, entry *ldapclient.Entry) map[string][]string {
	current := make(map[string][]string, len(known))
	for name, values := range known {
		server, ok := entry.Get(name)
		if !ok {
			continue
		}
		if helpers.SameValues(values, server.Values()) {
			current[name] = values
			continue
		}
		current[name] = server.Values()
	}
	return current
}

// planEntryChanges returns the modifications turning have into want: changed or
// new attributes are replaced, attributes no longer configured are removed.
func planEntryChanges(have, want map[string][]string) *ldapclient.BatchModification {
	batch := ldapclient.NewBatchModification()

	for _, name := range sortedNames(want) {
		if current, ok := have[name]; ok && helpers.SameValues(current, want[name]) {
			continue
		}
		batch.Add(name, ldapclient.BatchReplace, want[name]...)
	}

	for _, name := range sortedNames(have) {
		if _, ok := want[name]; !ok {
			batch.Add(name, ldapclient.BatchRemoveAll)
		}
	}

	return batch
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
