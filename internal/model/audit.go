package model

import "time"

// AuditAction names a staff mutation recorded in the audit log
type AuditAction string

const (
	AuditAdjustBalance   AuditAction = "adjust_balance"
	AuditCompleteMission AuditAction = "complete_mission"
	AuditCancelMission   AuditAction = "cancel_mission"
	AuditResetPlayer     AuditAction = "reset_player"
	AuditSetRole         AuditAction = "set_role"
)

// AuditEntry records one staff action against a player record
type AuditEntry struct {
	ID        string       `json:"id"`
	ActorID   PlayerID     `json:"actor_id"`
	TargetID  PlayerID     `json:"target_id"`
	Action    AuditAction  `json:"action"`
	Field     BalanceField `json:"field,omitempty"`
	Delta     int64        `json:"delta,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
