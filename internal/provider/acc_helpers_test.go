package provider

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/hashicorp/terraform-plugin-testing/terraform"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// Acceptance tests talk to the server named by LDAP_HOST and write below
// LDAP_TEST_CONTAINER (relative to the base DN).
const (
	envTestContainer     = "LDAP_TEST_CONTAINER"
	defaultTestContainer = "ou=People"

	TestEntryPrefix = "tf-test-entry-"
)

// accEnv is the acceptance test environment.
type accEnv struct {
	Host, Username, Password, BaseDN string
	Container                        string
}

func GetTestConfig() accEnv {
	env := accEnv{
		Host:      os.Getenv("LDAP_HOST"),
		Username:  os.Getenv("LDAP_USERNAME"),
		Password:  os.Getenv("LDAP_PASSWORD"),
		BaseDN:    os.Getenv("LDAP_BASE_DN"),
		Container: os.Getenv(envTestContainer),
	}
	if env.Container == "" {
		env.Container = defaultTestContainer
	}
	return env
}

// testAccPreCheckWithConfig skips t unless TF_ACC is set and a server is configured.
func testAccPreCheckWithConfig(t *testing.T) accEnv {
	t.Helper()

	if os.Getenv("TF_ACC") == "" {
		t.Skip("Skipping acceptance test - set TF_ACC=1 to run")
	}

	env := GetTestConfig()
	switch {
	case env.Host == "":
		t.Skip("Skipping test: LDAP_HOST must be set to a real LDAP server")
	case env.Username == "" || env.Password == "":
		t.Skip("Skipping test: LDAP_USERNAME and LDAP_PASSWORD must be set")
	}
	return env
}

// accProviderConfig renders a provider block for the acceptance environment.
func accProviderConfig() string {
	env := GetTestConfig()

	var b strings.Builder
	b.WriteString("provider \"ldap\" {\n")
	fmt.Fprintf(&b, "  host     = %q\n", env.Host)
	fmt.Fprintf(&b, "  username = %q\n", env.Username)
	fmt.Fprintf(&b, "  password = %q\n", env.Password)
	if env.BaseDN != "" {
		fmt.Fprintf(&b, "  base_dn  = %q\n", env.BaseDN)
	}
	b.WriteString("}\n")
	return b.String()
}

// GenerateTestName returns prefix followed by a timestamp and a short random suffix.
func GenerateTestName(prefix string) string {
	return prefix + time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

type TestDataGenerator struct {
	container string
}

func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{container: GetTestConfig().Container}
}

// GenerateEntryConfig renders an ldap_entry for a person named name below the test container.
func (g *TestDataGenerator) GenerateEntryConfig(name, description string) string {
	return fmt.Sprintf(`
data "ldap_whoami" "current" {}

resource "ldap_entry" "test" {
  dn = provider::ldap::build_dn("cn", %[1]q, "%[2]s,${data.ldap_whoami.current.base_dn}")
  attributes = {
    objectClass = ["top", "person"]
    cn          = [%[1]q]
    sn          = [%[1]q]
    description = [%[3]q]
  }
}`, name, g.container, description)
}

// testSession opens a session on the acceptance server.
func testSession(ctx context.Context) (*ldapclient.Session, error) {
	env := GetTestConfig()

	cfg, err := ldapclient.NewConfig()
	if err != nil {
		return nil, err
	}
	cfg.Host = env.Host
	cfg.User = env.Username
	cfg.Password = env.Password
	cfg.BaseDN = env.BaseDN

	return ldapclient.ConnectWithConfig(ctx, cfg)
}

// TestFixture holds a session for entries created outside Terraform and
// deletes them, newest first, on Cleanup.
type TestFixture struct {
	t       *testing.T
	session *ldapclient.Session
	created []string
}

func NewTestFixture(t *testing.T) *TestFixture {
	testAccPreCheckWithConfig(t)

	session, err := testSession(t.Context())
	if err != nil {
		t.Fatalf("Failed to open LDAP session for test fixture: %v", err)
	}
	return &TestFixture{t: t, session: session}
}

func (f *TestFixture) RegisterResource(dn string) {
	f.created = append(f.created, dn)
}

func (f *TestFixture) Cleanup() {
	ctx := context.Background()

	for i := len(f.created) - 1; i >= 0; i-- {
		if err := f.session.Delete(ctx, f.created[i]); err != nil {
			f.t.Logf("Failed to clean up %s: %v", f.created[i], err)
		}
	}
	if err := f.session.Close(); err != nil {
		f.t.Logf("Failed to close LDAP session: %v", err)
	}
}

// entryExists reports whether dn is present on the acceptance server.
func entryExists(dn string) (bool, error) {
	ctx := context.Background()
	session, err := testSession(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to open LDAP session: %w", err)
	}
	defer session.Close()

	entry, err := session.ReadEntry(ctx, dn, []string{"objectClass"})
	if err != nil {
		return false, fmt.Errorf("failed to read entry %s: %w", dn, err)
	}
	return entry != nil, nil
}

// accCheckEntryExists verifies that the entry managed by resourceName exists.
func accCheckEntryExists(resourceName string) resource.TestCheckFunc {
	return func(s *terraform.State) error {
		rs, ok := s.RootModule().Resources[resourceName]
		if !ok {
			return fmt.Errorf("resource not found: %s", resourceName)
		}
		if rs.Primary.ID == "" {
			return fmt.Errorf("resource ID not set")
		}

		exists, err := entryExists(rs.Primary.ID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("entry %s does not exist", rs.Primary.ID)
		}
		return nil
	}
}

// accCheckEntryDestroy verifies that every ldap_entry in state is gone.
func accCheckEntryDestroy(s *terraform.State) error {
	for _, rs := range s.RootModule().Resources {
		if rs.Type != "ldap_entry" {
			continue
		}

		exists, err := entryExists(rs.Primary.ID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("entry %s still exists", rs.Primary.ID)
		}
	}
	return nil
}
