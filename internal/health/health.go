package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"mailsink/backend/internal/storage"
)

// Checker 聚合存活与就绪探针。
//
// 存活检查只看进程自身的状态，依赖故障不触发重启；
// 就绪检查覆盖存储依赖，失败时实例从流量池中摘除。
type Checker struct {
	handler healthcheck.Handler
	log     *zap.Logger
}

// New 创建健康检查器并挂上存储依赖的就绪检查。
func New(store storage.Store, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Checker{
		handler: healthcheck.NewHandler(),
		log:     log,
	}

	// 协程数失控说明进程本身出了问题
	c.handler.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(2000))

	c.handler.AddReadinessCheck("store", func() error {
		return store.Health()
	})

	return c
}

// AddReadinessCheck 追加一项就绪检查。
func (c *Checker) AddReadinessCheck(name string, check healthcheck.Check) {
	c.handler.AddReadinessCheck(name, check)
}

// LiveEndpoint 暴露存活探针。
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint 暴露就绪探针。
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}
