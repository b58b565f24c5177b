package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/doctracker/internal/models"
)

func createTestUser(t *testing.T, db *gorm.DB, email string, settings datatypes.JSONMap) models.User {
	t.Helper()
	user := models.User{Email: email, Settings: settings}
	require.NoError(t, db.Create(&user).Error)
	return user
}
