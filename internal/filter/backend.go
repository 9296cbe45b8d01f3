package filter

import (
	"fmt"
	"strings"

	"github.com/blogforge/blogforge/internal/crawler"
)

// Bilingual vocabularies for the backend/frontend split. Matching is
// case-insensitive substring, so each term is stored lowercased.
var backendVocabulary = []string{
	"backend", "server", "api", "database", "server-side",
	"java", "python", "spring", "django", "flask",
	"microservices", "rest", "graphql", "grpc",
	"docker", "kubernetes", "aws", "azure", "gcp",
	"mysql", "postgresql", "mongodb", "redis",
	"devops", "ci/cd", "monitoring", "logging",
	"백엔드", "서버", "데이터베이스", "서버사이드",
	"자바", "파이썬", "스프링", "장고", "플라스크",
	"마이크로서비스", "도커", "쿠버네티스", "모니터링", "로깅",
}

var frontendVocabulary = []string{
	"frontend", "ui", "ux", "design", "css", "html",
	"javascript", "react", "vue", "angular",
	"button", "form", "layout", "responsive", "mobile",
	"프론트엔드", "디자인", "자바스크립트", "리액트", "뷰", "앵귤러",
	"버튼", "폼", "레이아웃", "반응형", "모바일",
}

// BackendFilter keeps items whose backend vocabulary score strictly exceeds
// their frontend score. Ties reject: an article equally about React and its
// API backend is not backend content.
type BackendFilter struct{}

func NewBackendFilter() *BackendFilter { return &BackendFilter{} }

func (f *BackendFilter) Name() string { return "backend" }

func (f *BackendFilter) Apply(item crawler.Content) (bool, string) {
	text := strings.ToLower(item.Title + " " + item.Body)
	backend := vocabularyScore(text, backendVocabulary)
	frontend := vocabularyScore(text, frontendVocabulary)
	if backend > frontend {
		return true, ""
	}
	return false, fmt.Sprintf("backend score %d does not exceed frontend score %d", backend, frontend)
}

// vocabularyScore counts how many distinct vocabulary terms appear in text.
func vocabularyScore(text string, vocabulary []string) int {
	score := 0
	for _, term := range vocabulary {
		if strings.Contains(text, term) {
			score++
		}
	}
	return score
}
