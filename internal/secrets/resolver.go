package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-sqs-order-worker/internal/aws"
	"github.com/imrishuroy/go-sqs-order-worker/internal/validation"
)

// ErrSecretUnavailable is returned for every failure to produce a usable credential.
// Callers treat it as fatal at startup.
var ErrSecretUnavailable = errors.New("secret unavailable")

// Credential is the JSON document stored in Secrets Manager. RDS-managed secrets carry the
// connection fields as well; only Password is required. The connection fields are read
// leniently: a port stored as "5432" is as good as 5432, and a field of any other type is
// left empty.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password" validate:"required"`
	Host     string `json:"-"`
	Port     int    `json:"-"`
	DBName   string `json:"-"`
	Engine   string `json:"-"`
}

// Resolver fetches credentials by name.
type Resolver struct {
	client aws.SecretsManagerAPI
	log    zerolog.Logger
}

// NewResolver returns a Resolver backed by client.
func NewResolver(client aws.SecretsManagerAPI, log zerolog.Logger) *Resolver {
	return &Resolver{
		client: client,
		log:    log.With().Str("component", "secrets").Logger(),
	}
}

// GetSecret retrieves and decodes the secret called name.
func (r *Resolver) GetSecret(ctx context.Context, name string) (Credential, error) {
	if name == "" {
		return Credential{}, fmt.Errorf("%w: empty secret name", ErrSecretUnavailable)
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &name,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return Credential{}, fmt.Errorf("%w: get %s: %s: %v", ErrSecretUnavailable, name, apiErr.ErrorCode(), err)
		}
		return Credential{}, fmt.Errorf("%w: get %s: %v", ErrSecretUnavailable, name, err)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		raw = out.SecretBinary
	default:
		return Credential{}, fmt.Errorf("%w: %s has no value", ErrSecretUnavailable, name)
	}

	cred, err := decodeCredential(raw)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: decode %s: %v", ErrSecretUnavailable, name, err)
	}
	if err := validation.New().Struct(cred); err != nil {
		return Credential{}, fmt.Errorf("%w: %s: %s", ErrSecretUnavailable, name, validation.Describe(err))
	}

	r.log.Info().Str("secret", name).Str("username", cred.Username).Msg("credential resolved")
	return cred, nil
}

func decodeCredential(raw []byte) (Credential, error) {
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, err
	}

	var extra map[string]any
	if err := json.Unmarshal(raw, &extra); err != nil {
		return Credential{}, err
	}
	cred.Host = text(extra["host"])
	cred.Port = port(extra["port"])
	cred.DBName = text(extra["dbname"])
	cred.Engine = text(extra["engine"])
	return cred, nil
}

func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func port(v any) int {
	switch v := v.(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
