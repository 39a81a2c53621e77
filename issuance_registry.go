// Issuance registry

package main

// Tokens issued to an user for a channel
type IssuanceRecord struct {
	// Channel name
	ChannelName string `json:"channel"`

	// User ID
	Uid uint32 `json:"uid"`

	// Resolved role
	Role string `json:"role"`

	// Issue timestamp (Unix seconds)
	IssuedAt int64 `json:"issued_at"`

	// Expiration (Unix seconds)
	ExpireTime uint32 `json:"expire"`
}

type IssuanceRegistry interface {
	// Records the tokens issued to an user for a channel.
	// The record must be kept until the tokens expire.
	RecordIssuance(record IssuanceRecord) error
}
