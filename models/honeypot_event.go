package models

import (
	"time"
)

// HoneypotEvent is the demo backend's stored observation
type HoneypotEvent struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
	SourceIP     string    `gorm:"index" json:"source_ip"`
	Port         int       `json:"port"`
	AttackType   string    `json:"attack_type"`   // "SSH Brute Force", "SQL Injection", ...
	MLPrediction string    `json:"ml_prediction"` // "Malicious" or "Benign"
	Blocked      bool      `gorm:"default:false" json:"blocked"`
}

// Wire converts to the backend contract shape
func (h HoneypotEvent) Wire() WireEvent {
	return WireEvent{
		ID:           int64(h.ID),
		IPAddress:    h.SourceIP,
		Port:         h.Port,
		AttackType:   h.AttackType,
		MLPrediction: h.MLPrediction,
		Timestamp:    h.Timestamp.UTC().Format(time.RFC3339),
	}
}

// SeedHoneypotEvents returns the demo event set
func SeedHoneypotEvents() []HoneypotEvent {
	at := func(s string) time.Time {
		t, _ := time.Parse(time.RFC3339, s)
		return t
	}
	return []HoneypotEvent{
		{Timestamp: at("2025-01-25T10:30:15Z"), SourceIP: "192.168.1.115", Port: 22, AttackType: "SSH Brute Force", MLPrediction: "Malicious", Blocked: true},
		{Timestamp: at("2025-01-25T10:31:22Z"), SourceIP: "10.0.0.45", Port: 80, AttackType: "HTTP Scan", MLPrediction: "Benign"},
		{Timestamp: at("2025-01-25T10:32:18Z"), SourceIP: "203.0.113.50", Port: 443, AttackType: "SQL Injection", MLPrediction: "Malicious", Blocked: true},
		{Timestamp: at("2025-01-25T10:33:45Z"), SourceIP: "172.16.0.88", Port: 21, AttackType: "FTP Enumeration", MLPrediction: "Benign"},
		{Timestamp: at("2025-01-25T10:34:02Z"), SourceIP: "198.51.100.23", Port: 3389, AttackType: "RDP Brute Force", MLPrediction: "Malicious", Blocked: true},
		{Timestamp: at("2025-01-25T10:35:11Z"), SourceIP: "10.0.0.12", Port: 80, AttackType: "HTTP Scan", MLPrediction: "Benign"},
		{Timestamp: at("2025-01-25T10:36:40Z"), SourceIP: "192.0.2.77", Port: 23, AttackType: "Telnet Probe", MLPrediction: "Malicious"},
		{Timestamp: at("2025-01-25T10:37:05Z"), SourceIP: "10.0.0.45", Port: 8080, AttackType: "Port Scan", MLPrediction: "Benign"},
		{Timestamp: at("2025-01-25T10:38:19Z"), SourceIP: "203.0.113.9", Port: 443, AttackType: "XSS Attempt", MLPrediction: "Malicious", Blocked: true},
		{Timestamp: at("2025-01-25T10:39:33Z"), SourceIP: "172.16.0.5", Port: 53, AttackType: "DNS Query", MLPrediction: "Benign"},
	}
}
