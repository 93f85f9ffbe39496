package sms

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"

	"github.com/vitalab/vitalab-backend/pkg/logger"
)

const aliyunEndpoint = "https://dysmsapi.aliyuncs.com/"

// AliyunGateway dispatches codes through the Aliyun SMS RPC API
// (Action=SendSms, version 2017-05-25, HMAC-SHA1 signing).
type AliyunGateway struct {
	accessKeyID     string
	accessKeySecret string
	signName        string
	templateCode    string
	regionID        string

	endpoint string
	client   *http.Client
}

type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	SignName        string
	TemplateCode    string
	RegionID        string
	Timeout         time.Duration
}

func NewAliyunGateway(cfg AliyunConfig) *AliyunGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	region := cfg.RegionID
	if region == "" {
		region = "cn-hangzhou"
	}

	return &AliyunGateway{
		accessKeyID:     cfg.AccessKeyID,
		accessKeySecret: cfg.AccessKeySecret,
		signName:        cfg.SignName,
		templateCode:    cfg.TemplateCode,
		regionID:        region,
		endpoint:        aliyunEndpoint,
		client:          &http.Client{Timeout: timeout},
	}
}

// sendSmsParams carries the public request parameters; go-querystring turns
// it into the url.Values fed to the signing step.
type sendSmsParams struct {
	AccessKeyID      string `url:"AccessKeyId"`
	Action           string `url:"Action"`
	Format           string `url:"Format"`
	PhoneNumbers     string `url:"PhoneNumbers"`
	RegionID         string `url:"RegionId"`
	SignName         string `url:"SignName"`
	SignatureMethod  string `url:"SignatureMethod"`
	SignatureNonce   string `url:"SignatureNonce"`
	SignatureVersion string `url:"SignatureVersion"`
	TemplateCode     string `url:"TemplateCode"`
	TemplateParam    string `url:"TemplateParam"`
	Timestamp        string `url:"Timestamp"`
	Version          string `url:"Version"`
}

type aliyunResponse struct {
	Code      string `json:"Code"`
	Message   string `json:"Message"`
	BizID     string `json:"BizId"`
	RequestID string `json:"RequestId"`
}

func (g *AliyunGateway) SendVerificationCode(ctx context.Context, phone, code string) error {
	templateParam, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return fmt.Errorf("failed to marshal template param: %w", err)
	}

	params := sendSmsParams{
		AccessKeyID:      g.accessKeyID,
		Action:           "SendSms",
		Format:           "JSON",
		PhoneNumbers:     phone,
		RegionID:         g.regionID,
		SignName:         g.signName,
		SignatureMethod:  "HMAC-SHA1",
		SignatureNonce:   uuid.NewString(),
		SignatureVersion: "1.0",
		TemplateCode:     g.templateCode,
		TemplateParam:    string(templateParam),
		Timestamp:        time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Version:          "2017-05-25",
	}

	values, err := query.Values(params)
	if err != nil {
		return fmt.Errorf("failed to encode request params: %w", err)
	}
	values.Set("Signature", Sign(g.accessKeySecret, "GET", values))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms dispatch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read sms response: %w", err)
	}

	var ar aliyunResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return fmt.Errorf("failed to decode sms response: %w", err)
	}

	if ar.Code != "OK" {
		logger.ErrorContext(ctx, "Aliyun SMS dispatch rejected",
			"code", ar.Code, "message", ar.Message, "request_id", ar.RequestID)
		return fmt.Errorf("sms provider rejected dispatch: %s", ar.Code)
	}

	logger.InfoContext(ctx, "Aliyun SMS dispatched", "biz_id", ar.BizID, "request_id", ar.RequestID)
	return nil
}

// Sign computes the Aliyun RPC-style request signature over the public
// parameters. Exported for the signing tests.
func Sign(accessKeySecret, httpMethod string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for i, k := range keys {
		if i > 0 {
			canonical.WriteByte('&')
		}
		canonical.WriteString(popEncode(k))
		canonical.WriteByte('=')
		canonical.WriteString(popEncode(values.Get(k)))
	}

	stringToSign := httpMethod + "&" + popEncode("/") + "&" + popEncode(canonical.String())

	mac := hmac.New(sha1.New, []byte(accessKeySecret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// popEncode applies the percent-encoding variant the POP signature spec
// requires on top of standard query escaping.
func popEncode(s string) string {
	e := url.QueryEscape(s)
	e = strings.ReplaceAll(e, "+", "%20")
	e = strings.ReplaceAll(e, "*", "%2A")
	e = strings.ReplaceAll(e, "%7E", "~")
	return e
}
