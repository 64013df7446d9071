package bigquery

import (
	"testing"

	"cloud.google.com/go/bigquery"

	"github.com/guildlytics/guildlytics-backend/pkg/config"
	pkgerrors "github.com/guildlytics/guildlytics-backend/pkg/errors"
)

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsWithFile(t *testing.T) {
	gcp := config.GCPConfig{
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option when using credentials file, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	gcp := config.GCPConfig{}

	opts := clientOptions(gcp)
	if len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestVerifySchemaAcceptsSuperset(t *testing.T) {
	expected := bigquery.Schema{
		{Name: "user_id", Type: bigquery.StringFieldType},
		{Name: "updated_at", Type: bigquery.TimestampFieldType},
	}
	actual := bigquery.Schema{
		{Name: "user_id", Type: bigquery.StringFieldType},
		{Name: "updated_at", Type: bigquery.TimestampFieldType},
		{Name: "extra", Type: bigquery.StringFieldType},
	}

	if err := verifySchema("dim_member", actual, expected); err != nil {
		t.Fatalf("superset schema should verify: %v", err)
	}
}

func TestVerifySchemaRejectsMissingColumn(t *testing.T) {
	expected := bigquery.Schema{
		{Name: "user_id", Type: bigquery.StringFieldType},
	}

	err := verifySchema("dim_member", bigquery.Schema{}, expected)
	if err == nil {
		t.Fatal("expected missing column to fail verification")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConfig {
		t.Fatalf("schema mismatch should be a config error, got %v", err)
	}
}

func TestVerifySchemaRejectsTypeMismatch(t *testing.T) {
	expected := bigquery.Schema{
		{Name: "message_count", Type: bigquery.IntegerFieldType},
	}
	actual := bigquery.Schema{
		{Name: "message_count", Type: bigquery.StringFieldType},
	}

	err := verifySchema("message_count", actual, expected)
	if err == nil {
		t.Fatal("expected type mismatch to fail verification")
	}
	if pkgerrors.As(err) == nil {
		t.Fatalf("expected typed config error, got %v", err)
	}
}
