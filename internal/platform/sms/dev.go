package sms

import (
	"context"
	"fmt"

	"github.com/vitalab/vitalab-backend/pkg/logger"
)

// DevGateway pretends every dispatch succeeded and prints the code so it
// can be copied during local development.
type DevGateway struct{}

func NewDevGateway() *DevGateway {
	return &DevGateway{}
}

func (d *DevGateway) SendVerificationCode(ctx context.Context, phone, code string) error {
	logger.InfoContext(ctx, "📱 [DEV SMS] Verification code",
		"phone", phone,
		"code", code,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📱 VERIFICATION SMS (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s\n"+
		"Code: %s (valid for 5 minutes)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		phone, code)

	return nil
}
