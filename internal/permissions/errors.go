package permissions

import "github.com/nextlevelbuilder/embergate/internal/apierr"

func notFound() error                      { return apierr.NotFound() }
func missingPermission(name string) error  { return apierr.MissingPermission(name) }
