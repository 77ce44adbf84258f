package rest

import (
	"time"
)

// AssessRequest is the POST /api/v1/assess payload.
type AssessRequest struct {
	TransactionID    string    `json:"transaction_id" validate:"omitempty,uuid4"`
	EntityID         string    `json:"entity_id" validate:"required,max=128"`
	Amount           float64   `json:"amount" validate:"gte=0"`
	Currency         string    `json:"currency" validate:"omitempty,len=3"`
	Timestamp        time.Time `json:"timestamp"`
	FraudProbability float64   `json:"fraud_probability" validate:"gte=0,lte=1"`

	MerchantCategory string `json:"merchant_category" validate:"omitempty,max=64"`
	Location         string `json:"location" validate:"omitempty,max=128"`
	CustomerName     string `json:"customer_name" validate:"omitempty,max=256"`
	MerchantName     string `json:"merchant_name" validate:"omitempty,max=256"`
}

// ComplianceCheckRequest is the POST /api/v1/compliance/check payload. It
// evaluates the rules without recording the transaction.
type ComplianceCheckRequest struct {
	TransactionID    string    `json:"transaction_id" validate:"omitempty,uuid4"`
	EntityID         string    `json:"entity_id" validate:"required,max=128"`
	Amount           float64   `json:"amount" validate:"gte=0"`
	Currency         string    `json:"currency" validate:"omitempty,len=3"`
	Timestamp        time.Time `json:"timestamp"`
	MerchantCategory string    `json:"merchant_category" validate:"omitempty,max=64"`
	Location         string    `json:"location" validate:"omitempty,max=128"`
	CustomerName     string    `json:"customer_name" validate:"omitempty,max=256"`
	MerchantName     string    `json:"merchant_name" validate:"omitempty,max=256"`
}

// ComplianceCheckResponse pairs the assessment with a roll-up status.
type ComplianceCheckResponse struct {
	TransactionID string      `json:"transaction_id,omitempty"`
	EntityID      string      `json:"entity_id"`
	Status        string      `json:"compliance_status"`
	Assessment    interface{} `json:"assessment"`
}

// ResponseEnvelope wraps all API responses.
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type ErrorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Uptime  string    `json:"uptime"`
	Now     time.Time `json:"now"`
}
