package redis

import (
	"fmt"
	"strings"

	"github.com/mcoot/chaosroom/internal/model"
)

// Key prefix for all event data
const keyPrefix = "chaos"

// playerKey returns the Redis key for the player record hash
func playerKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s", keyPrefix, id)
}

// completedKey returns the Redis key for the LIST of completed missions
func completedKey(id model.PlayerID) string {
	return fmt.Sprintf("%s:player:%s:completed", keyPrefix, id)
}

// playerIndexKey returns the Redis key for the LIST of player ids in arrival order
func playerIndexKey() string {
	return fmt.Sprintf("%s:idx:players", keyPrefix)
}

// credentialKey returns the Redis key for a credential, indexed by email
func credentialKey(email string) string {
	return fmt.Sprintf("%s:credential:%s", keyPrefix, strings.ToLower(email))
}

// playerChannel returns the pub/sub channel announcing one player's changes
func playerChannel(id model.PlayerID) string {
	return fmt.Sprintf("%s:events:player:%s", keyPrefix, id)
}

// playersChannel returns the pub/sub channel announcing any record change
func playersChannel() string {
	return fmt.Sprintf("%s:events:players", keyPrefix)
}
