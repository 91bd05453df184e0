package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps only the last four digits of a phone number.
// "+1 (212) 555-0188" → "***0188". Inputs with fewer than five digits are
// fully masked.
func RedactPhone(phone string) string {
	var digits []byte
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) < 5 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}

// RedactAddress masks a channel address by its shape: emails keep their
// domain, anything else is treated as a phone number.
func RedactAddress(addr string) string {
	if strings.Contains(addr, "@") {
		return RedactEmail(addr)
	}
	return RedactPhone(addr)
}
