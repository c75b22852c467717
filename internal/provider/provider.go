package provider

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
	"github.com/isometry/terraform-provider-ldap/internal/provider/validators"
)

// Ensure LDAPProvider satisfies various provider interfaces.
var _ provider.Provider = &LDAPProvider{}
var _ provider.ProviderWithFunctions = &LDAPProvider{}
var _ provider.ProviderWithConfigValidators = &LDAPProvider{}

// LDAPProvider defines the provider implementation.
type LDAPProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string

	// connectOptions are passed to every connection attempt.
	connectOptions []ldapclient.ConnectOption
}

// LDAPProviderModel describes the provider data model.
type LDAPProviderModel struct {
	// Connection settings
	Host     types.String `tfsdk:"host"`
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// Search settings
	BaseDN      types.String `tfsdk:"base_dn"`
	Timeout     types.Int64  `tfsdk:"timeout"`
	Scope       types.String `tfsdk:"scope"`
	ResultLimit types.Int64  `tfsdk:"result_limit"`

	// Configuration file (mutually exclusive with host)
	ConfigFile    types.String `tfsdk:"config_file"`
	ConfigSection types.String `tfsdk:"config_section"`
}

func (p *LDAPProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "ldap"
	resp.Version = p.version
}

func (p *LDAPProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The LDAP provider reads and manages directory entries over LDAP/LDAPS, " +
			"with paged searches and Active Directory account helpers.",
		Attributes: map[string]schema.Attribute{
			"host": schema.StringAttribute{
				MarkdownDescription: "LDAP server, either a host name (`dc1.example.com`, `dc1.example.com:389`) " +
					"or a URL (`ldaps://dc1.example.com:636`). Mutually exclusive with `config_file`. " +
					"Can be set via the `LDAP_HOST` environment variable.",
				Optional: true,
			},
			"username": schema.StringAttribute{
				MarkdownDescription: "Bind DN used to authenticate (e.g., `cn=admin,dc=example,dc=com`). " +
					"Can be set via the `LDAP_USERNAME` environment variable.",
				Optional: true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Bind password. Can be set via the `LDAP_PASSWORD` environment variable.",
				Optional:            true,
				Sensitive:           true,
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Base DN for searches (e.g., `dc=example,dc=com`). " +
					"If not specified, it is derived from the `dc=` components of the bound identity. " +
					"Can be set via the `LDAP_BASE_DN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsValidDN(),
				},
			},
			"timeout": schema.Int64Attribute{
				MarkdownDescription: "Network timeout in seconds. Defaults to `5`. " +
					"Can be set via the `LDAP_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"scope": schema.StringAttribute{
				MarkdownDescription: "Default scope of entry lookups: `subtree` or `onelevel`. Defaults to `subtree`. " +
					"Can be set via the `LDAP_SCOPE` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.IsSearchScope(),
				},
			},
			"result_limit": schema.Int64Attribute{
				MarkdownDescription: "Maximum number of entries returned by a search. `0` means unlimited. " +
					"Can be set via the `LDAP_RESULT_LIMIT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(0),
				},
			},
			"config_file": schema.StringAttribute{
				MarkdownDescription: "Path to an `.ini` or `.json` file holding `HOST`, `USER`, `PWD` and `DN` " +
					"(and optionally `TIMEOUT`, `SCOPE`, `RESULT_LIMIT`). Mutually exclusive with `host`. " +
					"Can be set via the `LDAP_CONFIG_FILE` environment variable.",
				Optional: true,
			},
			"config_section": schema.StringAttribute{
				MarkdownDescription: "Section of `config_file` to read. Defaults to the top level of the file. " +
					"Can be set via the `LDAP_CONFIG_SECTION` environment variable.",
				Optional: true,
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *LDAPProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		providervalidator.Conflicting(
			path.MatchRoot("config_file"),
			path.MatchRoot("host"),
		),
		providervalidator.Conflicting(
			path.MatchRoot("config_file"),
			path.MatchRoot("username"),
		),
	}
}

func (p *LDAPProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data LDAPProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring LDAP provider", map[string]any{
		"version": p.version,
	})

	config := p.buildLDAPConfig(&data, &resp.Diagnostics)
	if resp.Diagnostics.HasError() {
		return
	}

	start := time.Now()
	session, err := ldapclient.ConnectWithConfig(ctx, config, p.connectOptions...)
	if err != nil {
		tflog.Error(ctx, "Failed to open LDAP session", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})

		summary := "Unable to Connect to LDAP Server"
		if ldapclient.IsKind(err, ldapclient.KindBind) {
			summary = "Authentication Failed"
		}
		resp.Diagnostics.AddError(
			summary,
			"The provider could not open a session with the LDAP server. "+
				"Please verify your configuration settings.\n\n"+
				"LDAP Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "LDAP provider configured successfully", map[string]any{
		"server":      session.Server(),
		"base_dn":     session.SearchOptions().BaseDN(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	providerData := ldapclient.NewProviderData(session)

	resp.DataSourceData = providerData
	resp.ResourceData = providerData
}

// configureLogging sets up logging configuration based on environment variables.
func (p *LDAPProvider) configureLogging(ctx context.Context) context.Context {
	ctx = tflog.SetField(ctx, "provider", "ldap")
	ctx = tflog.SetField(ctx, "provider_version", p.version)

	tflog.Debug(ctx, "LDAP provider logging configured")

	return ctx
}

// buildLDAPConfig constructs the session configuration from provider config and environment variables.
// A configuration file, when given, supplies every setting.
func (p *LDAPProvider) buildLDAPConfig(data *LDAPProviderModel, diags *diag.Diagnostics) *ldapclient.Config {
	if configFile := p.getStringValue(data.ConfigFile, "LDAP_CONFIG_FILE"); configFile != "" {
		section := p.getStringValue(data.ConfigSection, "LDAP_CONFIG_SECTION")
		config, err := ldapclient.LoadConfigFile(configFile, section)
		if err != nil {
			diags.AddAttributeError(
				path.Root("config_file"),
				"Invalid Configuration File",
				"Could not load LDAP settings from "+configFile+": "+err.Error(),
			)
			return nil
		}
		return config
	}

	config, err := ldapclient.NewConfig()
	if err != nil {
		diags.AddError("Invalid Provider Configuration", err.Error())
		return nil
	}

	config.Host = p.getStringValue(data.Host, "LDAP_HOST")
	config.User = p.getStringValue(data.Username, "LDAP_USERNAME")
	config.Password = p.getStringValue(data.Password, "LDAP_PASSWORD")
	config.BaseDN = p.getStringValue(data.BaseDN, "LDAP_BASE_DN")

	if config.Host == "" {
		diags.AddError(
			"Missing LDAP Host",
			"Either 'host' or 'config_file' must be configured. "+
				"They can also be set via the LDAP_HOST or LDAP_CONFIG_FILE environment variables.",
		)
		return nil
	}

	if timeout := p.getInt64Value(data.Timeout, "LDAP_TIMEOUT", 0); timeout > 0 {
		config.Timeout = time.Duration(timeout) * time.Second
	}

	if scope := p.getStringValue(data.Scope, "LDAP_SCOPE"); scope != "" {
		config.Scope = strings.ToLower(scope)
	}

	if limit := p.getInt64Value(data.ResultLimit, "LDAP_RESULT_LIMIT", 0); limit > 0 {
		config.ResultLimit = int(limit)
	}

	if err := config.Validate(); err != nil {
		diags.AddError("Invalid Provider Configuration", err.Error())
		return nil
	}

	return config
}

// Helper functions for configuration value resolution

func (p *LDAPProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *LDAPProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *LDAPProvider) Resources(ctx context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewEntryResource,
		NewADAccountResource,
	}
}

func (p *LDAPProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewEntryDataSource,
		NewEntriesDataSource,
		NewWhoAmIDataSource,
	}
}

func (p *LDAPProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewBuildDNFunction,
		NewSHAPasswordFunction,
		NewEscapeFilterFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &LDAPProvider{
			version: version,
		}
	}
}
