package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// UserStore handles database operations for users and stored credentials
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user
func (s *UserStore) Create(user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	_, err := s.db.Exec(`INSERT INTO users (id, email) VALUES (?, ?)`,
		user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (s *UserStore) GetByID(id string) (*User, error) {
	var user User
	err := s.db.QueryRow(`SELECT id, email, created_at FROM users WHERE id = ?`, id).
		Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateCredential stores an OAuth client. The secret arrives already
// encrypted.
func (s *UserStore) CreateCredential(cred *Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	if cred.Provider == "" {
		cred.Provider = "google"
	}

	query := `INSERT INTO credentials (id, user_id, provider, client_id,
			  client_secret_encrypted) VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, cred.ID, cred.UserID, cred.Provider,
		cred.ClientID, cred.ClientSecret)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	return nil
}

// GetCredential retrieves a stored credential by ID
func (s *UserStore) GetCredential(id string) (*Credential, error) {
	var cred Credential
	query := `SELECT id, user_id, provider, client_id, client_secret_encrypted,
			  created_at FROM credentials WHERE id = ?`

	err := s.db.QueryRow(query, id).Scan(&cred.ID, &cred.UserID, &cred.Provider,
		&cred.ClientID, &cred.ClientSecret, &cred.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}
