package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/zenergy-backend/api/responses"
	pkgerrors "github.com/angelmondragon/zenergy-backend/pkg/errors"
	"github.com/angelmondragon/zenergy-backend/pkg/logger"
)

// OwnershipChecker confirms a user owns a store.
type OwnershipChecker interface {
	IsOwner(ctx context.Context, storeID, ownerID uuid.UUID) (bool, error)
}

// StoreContext requires an active store on the token and verifies the caller
// still owns it.
func StoreContext(checker OwnershipChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID, ok := UserUUIDFromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}
			storeID, ok := StoreUUIDFromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing"))
				return
			}
			if checker == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ownership checker unavailable"))
				return
			}
			owns, err := checker.IsOwner(ctx, storeID, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check store ownership"))
				return
			}
			if !owns {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store not owned by caller"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
