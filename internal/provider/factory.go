package provider

import (
	"context"
	"fmt"

	"github.com/fruitsalade/zipstream/internal/config"
	"github.com/fruitsalade/zipstream/internal/provider/catalog"
	fsprovider "github.com/fruitsalade/zipstream/internal/provider/fs"
	s3provider "github.com/fruitsalade/zipstream/internal/provider/s3"
	"github.com/fruitsalade/zipstream/internal/storage/smb"
)

// NewFromSpec creates a Provider from a provider type and its JSON config.
func NewFromSpec(ctx context.Context, spec config.ProviderSpec) (Provider, error) {
	switch spec.Type {
	case "fs":
		return fsprovider.NewFromJSON(spec.Config)
	case "smb":
		b, err := smb.NewFromJSON(spec.Config)
		if err != nil {
			return nil, err
		}
		return fsprovider.New(b), nil
	case "s3":
		return s3provider.NewFromJSON(ctx, spec.Config)
	case "catalog":
		return catalog.NewFromJSON(ctx, spec.Config)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", spec.Type)
	}
}
