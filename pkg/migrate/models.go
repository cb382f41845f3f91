package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/tipsplit-backend/pkg/db/models"
)

// AutoMigrateModels creates the split tables from the gorm models. Used for the
// embedded sqlite driver, where the Postgres SQL migrations do not apply.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(&models.PaymentSplit{}, &models.PaymentEvent{}); err != nil {
		return fmt.Errorf("auto migrate split models: %w", err)
	}
	return nil
}
