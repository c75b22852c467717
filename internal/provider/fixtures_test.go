package provider

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/ldaptest"
)

const (
	testBaseDN   = "dc=example,dc=com"
	testBindDN   = "cn=admin,dc=example,dc=com"
	testJDoeDN   = "uid=jdoe,ou=People,dc=example,dc=com"
	testADUserDN = "CN=svc-backup,OU=Service,DC=example,DC=com"
	testGUID     = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
)

// newTestDirectory returns a directory holding a few people and an AD service account.
func newTestDirectory(t *testing.T) *ldaptest.Directory {
	t.Helper()

	guid, err := ldapclient.NewGUIDHandler().StringToGUIDBytes(testGUID)
	require.NoError(t, err)

	dir := ldaptest.NewDirectory()
	dir.Put("ou=People,"+testBaseDN, map[string][]string{
		"objectClass": {"top", "organizationalUnit"},
		"ou":          {"People"},
	})
	dir.Put(testJDoeDN, map[string][]string{
		"objectClass": {"top", "person"},
		"uid":         {"jdoe"},
		"cn":          {"John Doe"},
		"sn":          {"Doe"},
		"mail":        {"jdoe@example.com"},
		"objectGUID":  {string(guid)},
	})
	dir.Put("uid=asmith,ou=People,"+testBaseDN, map[string][]string{
		"objectClass": {"top", "person"},
		"uid":         {"asmith"},
		"cn":          {"Alice Smith"},
		"sn":          {"Smith"},
	})
	dir.Put(testADUserDN, map[string][]string{
		"objectClass":        {"top", "user"},
		"cn":                 {"svc-backup"},
		"userAccountControl": {"66050"},
	})
	return dir
}

// newTestProviderData opens a session on dir the way Configure would.
func newTestProviderData(t *testing.T, dir *ldaptest.Directory) *ldapclient.ProviderData {
	t.Helper()

	session, err := ldapclient.Connect(t.Context(), "ldap.example.com", testBindDN, "secret", time.Second,
		ldapclient.NewSearchOptions(testBaseDN), ldapclient.WithDialer(dir.Dialer()))
	require.NoError(t, err)

	providerData := ldapclient.NewProviderData(session)
	t.Cleanup(func() { _ = providerData.Close() })
	return providerData
}

func configureDataSource(t *testing.T, ds datasource.DataSource, providerData any) {
	t.Helper()
	configurable, ok := ds.(datasource.DataSourceWithConfigure)
	require.True(t, ok)

	resp := &datasource.ConfigureResponse{}
	configurable.Configure(context.Background(), datasource.ConfigureRequest{ProviderData: providerData}, resp)
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
}

func configureResource(t *testing.T, r resource.Resource, providerData any) {
	t.Helper()
	configurable, ok := r.(resource.ResourceWithConfigure)
	require.True(t, ok)

	resp := &resource.ConfigureResponse{}
	configurable.Configure(context.Background(), resource.ConfigureRequest{ProviderData: providerData}, resp)
	require.False(t, resp.Diagnostics.HasError(), "%v", resp.Diagnostics)
}

// readDataSource runs Read with config built from model and returns the resulting state.
func readDataSource(t *testing.T, ds datasource.DataSource, model any) *datasource.ReadResponse {
	t.Helper()
	ctx := context.Background()

	schemaResp := &datasource.SchemaResponse{}
	ds.Schema(ctx, datasource.SchemaRequest{}, schemaResp)
	require.False(t, schemaResp.Diagnostics.HasError())

	objectType := schemaResp.Schema.Type().TerraformType(ctx)

	raw := tfsdk.State{Schema: schemaResp.Schema, Raw: tftypes.NewValue(objectType, nil)}
	diags := raw.Set(ctx, model)
	require.False(t, diags.HasError(), "%v", diags)

	resp := &datasource.ReadResponse{
		State: tfsdk.State{Schema: schemaResp.Schema, Raw: tftypes.NewValue(objectType, nil)},
	}
	ds.Read(ctx, datasource.ReadRequest{
		Config: tfsdk.Config{Schema: schemaResp.Schema, Raw: raw.Raw},
	}, resp)
	return resp
}

// resourceHarness drives a resource's CRUD methods directly.
type resourceHarness struct {
	t        *testing.T
	resource resource.Resource
	schema   tfsdk.State
}

func newResourceHarness(t *testing.T, r resource.Resource) *resourceHarness {
	t.Helper()
	ctx := context.Background()

	schemaResp := &resource.SchemaResponse{}
	r.Schema(ctx, resource.SchemaRequest{}, schemaResp)
	require.False(t, schemaResp.Diagnostics.HasError())

	return &resourceHarness{
		t:        t,
		resource: r,
		schema: tfsdk.State{
			Schema: schemaResp.Schema,
			Raw:    tftypes.NewValue(schemaResp.Schema.Type().TerraformType(ctx), nil),
		},
	}
}

// empty returns a null state for the resource schema.
func (h *resourceHarness) empty() tfsdk.State {
	return tfsdk.State{Schema: h.schema.Schema, Raw: h.schema.Raw.Copy()}
}

// state returns a state holding model.
func (h *resourceHarness) state(model any) tfsdk.State {
	h.t.Helper()
	state := h.empty()
	diags := state.Set(context.Background(), model)
	require.False(h.t, diags.HasError(), "%v", diags)
	return state
}

func (h *resourceHarness) plan(model any) tfsdk.Plan {
	state := h.state(model)
	return tfsdk.Plan{Schema: state.Schema, Raw: state.Raw}
}

func (h *resourceHarness) create(model any) *resource.CreateResponse {
	resp := &resource.CreateResponse{State: h.empty()}
	h.resource.Create(context.Background(), resource.CreateRequest{Plan: h.plan(model)}, resp)
	return resp
}

func (h *resourceHarness) read(state tfsdk.State) *resource.ReadResponse {
	resp := &resource.ReadResponse{State: state}
	h.resource.Read(context.Background(), resource.ReadRequest{State: state}, resp)
	return resp
}

func (h *resourceHarness) update(state tfsdk.State, model any) *resource.UpdateResponse {
	resp := &resource.UpdateResponse{State: h.empty()}
	h.resource.Update(context.Background(), resource.UpdateRequest{Plan: h.plan(model), State: state}, resp)
	return resp
}

func (h *resourceHarness) delete(state tfsdk.State) *resource.DeleteResponse {
	resp := &resource.DeleteResponse{State: state}
	h.resource.Delete(context.Background(), resource.DeleteRequest{State: state}, resp)
	return resp
}

func (h *resourceHarness) importState(id string) *resource.ImportStateResponse {
	h.t.Helper()
	importer, ok := h.resource.(resource.ResourceWithImportState)
	require.True(h.t, ok)

	resp := &resource.ImportStateResponse{State: h.empty()}
	importer.ImportState(context.Background(), resource.ImportStateRequest{ID: id}, resp)
	return resp
}
