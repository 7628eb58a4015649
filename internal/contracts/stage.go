package contracts

// Consultation Stage 정의 (SSOT)
// 모든 로그, 런 레코드에서 이 상수를 사용해야 함
//
// 상태 흐름:
//   INIT → LOADING_INSTANCES → RENDERING → DISPATCHING → COLLECTING → DEDUPING → DONE

// Stage represents a consultation run state
type Stage string

const (
	// StageInit 런 생성 직후
	StageInit Stage = "INIT"

	// StageLoadingInstances 레지스트리에서 활성 인스턴스 조회
	// 위치: internal/registry/
	StageLoadingInstances Stage = "LOADING_INSTANCES"

	// StageRendering 템플릿 렌더링 + 스냅샷 저장
	// 위치: internal/template/, internal/snapshot/
	StageRendering Stage = "RENDERING"

	// StageDispatching Evaluator 병렬 호출
	// 위치: internal/dispatch/
	StageDispatching Stage = "DISPATCHING"

	// StageCollecting 결과 파싱 + 실패 집계
	// 위치: internal/normalize/, internal/aggregate/
	StageCollecting Stage = "COLLECTING"

	// StageDeduping 중복 시그널 제거
	// 위치: internal/dedup/
	StageDeduping Stage = "DEDUPING"

	// StageDone 종료 (정상/중단 모두)
	StageDone Stage = "DONE"
)

// String returns the stage name
func (s Stage) String() string {
	return string(s)
}

// AllStages returns stages in execution order
func AllStages() []Stage {
	return []Stage{
		StageInit,
		StageLoadingInstances,
		StageRendering,
		StageDispatching,
		StageCollecting,
		StageDeduping,
		StageDone,
	}
}
