package repository

import "gorm.io/gorm"

// Repositories bundles all repository instances
type Repositories struct {
	User         UserRepository
	AccessState  AccessStateRepository
	Notification NotificationRepository
}

// NewRepositories creates all repositories on one database handle
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		AccessState:  NewAccessStateRepository(db),
		Notification: NewNotificationRepository(db),
	}
}
