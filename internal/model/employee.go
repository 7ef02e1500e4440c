package model

import "time"

const (
	EmployeeActive     = "active"
	EmployeeOnLeave    = "on-leave"
	EmployeeTerminated = "terminated"
)

const (
	RoleSupervisor           = "Supervisor"
	RoleConstructor          = "Constructor"
	RoleAssistantConstructor = "Assistant Constructor"
	RoleDriver               = "Driver"
)

type Employee struct {
	ID        string
	Name      string
	Role      string
	Phone     string
	Status    string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidEmployeeRole(s string) bool {
	switch s {
	case RoleSupervisor, RoleConstructor, RoleAssistantConstructor, RoleDriver:
		return true
	}
	return false
}

func ValidEmployeeStatus(s string) bool {
	switch s {
	case EmployeeActive, EmployeeOnLeave, EmployeeTerminated:
		return true
	}
	return false
}
