package mongo

import (
	"errors"
	"net/http"
	"testing"

	apperrors "agenda/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

func TestTranslateMongoError(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	if got := apperrors.AsAppError(translateMongoError(dup)); got.Code != apperrors.CodeConflict || got.StatusCode() != http.StatusConflict {
		t.Errorf("duplicate key = %+v", got)
	}

	appErr := apperrors.Validation("bad service", nil)
	if got := translateMongoError(appErr); got != appErr {
		t.Errorf("AppError not passed through: %v", got)
	}

	plain := errors.New("boom")
	got := translateMongoError(plain)
	if !errors.Is(got, plain) || apperrors.IsAppError(got) {
		t.Errorf("plain error = %v", got)
	}
}
