package service

import (
	"context"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/pkg/configwatcher"
	"exam_proctor_backend/pkg/logger"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"unicode"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	ReasonNoFace         = "no face detected"
	ReasonMultiplePeople = "multiple people detected"
	ReasonDevice         = "prohibited device detected"
)

// FraudPolicy 阈值与关键字都来自配置文件
type FraudPolicy struct {
	DeviceKeywords      []string `yaml:"device_keywords"`
	DeviceMinConfidence float64  `yaml:"device_min_confidence"`
}

func DefaultFraudPolicy() FraudPolicy {
	return FraudPolicy{
		DeviceKeywords: []string{
			"phone", "cellphone", "cell phone", "mobile phone", "smartphone", "telephone",
			"tablet", "ipad", "tablet computer", "electronic device",
		},
		DeviceMinConfidence: 0.6,
	}
}

// Evaluate 纯函数；规则按顺序匹配，先命中者决定原因
func (p FraudPolicy) Evaluate(fc model.FrameClassification) model.FraudVerdict {
	if fc.PersonCount == 0 {
		return model.SuspiciousVerdict(ReasonNoFace)
	}
	if fc.PersonCount > 1 {
		return model.SuspiciousVerdict(ReasonMultiplePeople)
	}
	for _, d := range fc.DetectedObjectTags {
		if d.Confidence <= p.DeviceMinConfidence {
			continue
		}
		if p.isDevice(d.Name) {
			return model.SuspiciousVerdict(ReasonDevice)
		}
	}
	return model.CleanVerdict()
}

// isDevice 按整词匹配，"phone" 不命中 "microphone"
func (p FraudPolicy) isDevice(name string) bool {
	words := splitWords(name)
	for _, kw := range p.DeviceKeywords {
		if containsWords(words, splitWords(kw)) {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsWords seq 是否作为连续词序列出现在 words 中
func containsWords(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
	for i := 0; i+len(seq) <= len(words); i++ {
		match := true
		for j, w := range seq {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (p FraudPolicy) validate() error {
	if p.DeviceMinConfidence < 0 || p.DeviceMinConfidence > 1 {
		return fmt.Errorf("device_min_confidence must be within 0..1, got %v", p.DeviceMinConfidence)
	}
	if len(p.DeviceKeywords) == 0 {
		return fmt.Errorf("device_keywords must not be empty")
	}
	return nil
}

func LoadFraudPolicy(path string) (FraudPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FraudPolicy{}, err
	}

	var p FraudPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return FraudPolicy{}, fmt.Errorf("parse fraud policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return FraudPolicy{}, err
	}
	return p, nil
}

// PolicyStore 可热更新的策略，读取无锁
type PolicyStore struct {
	current atomic.Pointer[FraudPolicy]
}

func NewPolicyStore(p FraudPolicy) *PolicyStore {
	s := &PolicyStore{}
	s.Set(p)
	return s
}

func (s *PolicyStore) Get() FraudPolicy {
	return *s.current.Load()
}

func (s *PolicyStore) Set(p FraudPolicy) {
	s.current.Store(&p)
}

func (s *PolicyStore) Evaluate(fc model.FrameClassification) model.FraudVerdict {
	return s.Get().Evaluate(fc)
}

// Reload 解析失败时保留当前策略
func (s *PolicyStore) Reload(path string) error {
	p, err := LoadFraudPolicy(path)
	if err != nil {
		return err
	}
	s.Set(p)
	logger.Log.Info("Fraud policy updated",
		zap.Strings("deviceKeywords", p.DeviceKeywords),
		zap.Float64("deviceMinConfidence", p.DeviceMinConfidence))
	return nil
}

// Watch 阻塞直到 ctx 结束
func (s *PolicyStore) Watch(ctx context.Context, path string) error {
	return configwatcher.WatchFile(ctx, path, 0, s.Reload)
}
