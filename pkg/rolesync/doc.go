// Package rolesync reconciles members' live roles against what the
// permission engine says they are entitled to. It restores captured roles
// on rejoin and mirrors position roles from the host guild into secondary
// guilds, on a schedule and in reaction to audit events.
package rolesync
