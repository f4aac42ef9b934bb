package models

import "errors"

var (
	errCombineGroupMissingRoles    = errors.New("models: join/compare combine group requires a role per input")
	errCombineGroupMissingJoinKeys = errors.New("models: join/compare combine group requires at least one join key pair")
)
