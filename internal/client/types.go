package client

import (
	"net/http"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"bytematch/internal/rules"
)

type RuleSetPolicy struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   RuleSetPolicySpec   `json:"spec,omitempty"`
	Status RuleSetPolicyStatus `json:"status,omitempty"`
}

type RuleSetPolicySpec struct {
	TargetSelector map[string]string `json:"targetSelector,omitempty"`
	Fold           string            `json:"fold,omitempty"`
	Rules          []rules.RuleSpec  `json:"rules,omitempty"`
	Interval       int               `json:"interval,omitempty"` // seconds
}

type RuleSetPolicyStatus struct {
	SpecHash           string             `json:"specHash,omitempty"`
	ObservedGeneration int64              `json:"observedGeneration,omitempty"`
	Conditions         []metav1.Condition `json:"conditions,omitempty"`
}

type ControllerResponse struct {
	Policy RuleSetPolicy `json:"policy"`
}

// TLSConfig holds controller TLS material. In-memory data takes
// precedence over file paths.
type TLSConfig struct {
	CACertPath         string
	ClientCertPath     string
	ClientKeyPath      string
	CACertData         []byte
	ClientCertData     []byte
	ClientKeyData      []byte
	InsecureSkipVerify bool
}

type Fetcher struct {
	controllerURL   string
	configHash      string
	fetchInterval   time.Duration
	verbose         bool
	operationalMode string
	updateChannel   chan<- rules.Set
	httpClient      *http.Client
	lastVersion     string
}
