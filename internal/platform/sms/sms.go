// Package sms sends one-time verification codes. The real implementation
// talks to Aliyun SMS; DevGateway is selected when USE_REAL_SMS is off and
// only logs the code.
package sms

import "context"

type Gateway interface {
	SendVerificationCode(ctx context.Context, phone, code string) error
}
