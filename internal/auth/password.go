package auth

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// PasswordPolicy defines the strength the hash command asks for.
type PasswordPolicy struct {
	MinLength  int
	MinEntropy float64
}

// DefaultPasswordPolicy requires 12 characters and 60 bits of entropy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:  12,
		MinEntropy: 60.0,
	}
}

// PasswordStrength is the estimated strength of a password.
type PasswordStrength struct {
	Score    int     // 0-4 (very weak to strong)
	Entropy  float64 // length * log2(charset size)
	Feedback []string
}

// CheckPassword reports why password falls short of policy, or nil.
func CheckPassword(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return fmt.Errorf("password must be at least %d characters", policy.MinLength)
	}
	if hasExcessiveRepetition(password) {
		return fmt.Errorf("password has too much repetition")
	}
	if e := CalculateStrength(password).Entropy; e < policy.MinEntropy {
		return fmt.Errorf("password is not strong enough (%.1f bits of entropy, need %.1f)", e, policy.MinEntropy)
	}
	return nil
}

// CalculateStrength estimates password strength from length and character classes.
func CalculateStrength(password string) PasswordStrength {
	classes := characterClasses(password)
	entropy := float64(len(password)) * math.Log2(float64(charsetSize(classes)))

	s := PasswordStrength{Entropy: entropy}
	switch {
	case entropy >= 70:
		s.Score = 4
	case entropy >= 60:
		s.Score = 3
	case entropy >= 50:
		s.Score = 2
	case entropy >= 40:
		s.Score = 1
	}

	switch s.Score {
	case 0:
		s.Feedback = append(s.Feedback, fmt.Sprintf("Very weak password (%.0f bits of entropy)", entropy))
	case 1:
		s.Feedback = append(s.Feedback, fmt.Sprintf("Weak password (%.0f bits of entropy)", entropy))
	case 2:
		s.Feedback = append(s.Feedback, fmt.Sprintf("Medium strength (%.0f bits of entropy)", entropy))
	default:
		s.Feedback = append(s.Feedback, fmt.Sprintf("Strong password (%.0f bits of entropy)", entropy))
	}
	if len(password) < 12 {
		s.Feedback = append(s.Feedback, fmt.Sprintf("Use at least 12 characters (currently %d)", len(password)))
	}
	if classes == 1 && len(password) < 20 {
		s.Feedback = append(s.Feedback, "Add uppercase, numbers, or symbols")
	}
	return s
}

func charsetSize(classes int) int {
	switch classes {
	case 2:
		return 62
	case 3:
		return 72
	case 4:
		return 95
	default:
		return 26
	}
}

// characterClasses counts lowercase, uppercase, digit and symbol classes.
func characterClasses(password string) int {
	var lower, upper, digit, symbol bool
	for _, c := range password {
		switch {
		case unicode.IsLower(c):
			lower = true
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsDigit(c):
			digit = true
		case unicode.IsPunct(c) || unicode.IsSymbol(c):
			symbol = true
		}
	}

	n := 0
	for _, has := range []bool{lower, upper, digit, symbol} {
		if has {
			n++
		}
	}
	return n
}

// hasExcessiveRepetition flags runs ("aaa"), doubled substrings ("abcabc"),
// repeated 4+ character substrings and ascending sequences ("1234").
func hasExcessiveRepetition(password string) bool {
	if len(password) < 3 {
		return false
	}

	for i := 0; i < len(password)-2; i++ {
		if password[i] == password[i+1] && password[i] == password[i+2] {
			return true
		}
	}

	for length := min(20, len(password)/2); length >= 2; length-- {
		for i := 0; i <= len(password)-length*2; i++ {
			if password[i:i+length] == password[i+length:i+length*2] {
				return true
			}
		}
	}

	for length := min(20, len(password)/2); length >= 4; length-- {
		for i := 0; i <= len(password)-length; i++ {
			if strings.Contains(password[i+length:], password[i:i+length]) {
				return true
			}
		}
	}

	run := 0
	for i := 0; i < len(password)-1; i++ {
		if password[i+1] == password[i]+1 {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 0
		}
	}

	return false
}
