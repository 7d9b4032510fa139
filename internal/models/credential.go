package models

import "time"

// Credential holds an account secret sealed with the vault key.
type Credential struct {
	AccountID  string    `gorm:"column:account_id;type:varchar(50);primaryKey"`
	Ciphertext []byte    `gorm:"column:ciphertext;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Credential) TableName() string {
	return "credentials"
}

// CredentialVault stores the key derivation salt and a sealed verifier used to
// check a master password without keeping the key.
type CredentialVault struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	Salt      []byte    `gorm:"column:salt;not null"`
	Verifier  []byte    `gorm:"column:verifier;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (CredentialVault) TableName() string {
	return "credential_vault"
}
