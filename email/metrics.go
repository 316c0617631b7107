package email

import "github.com/prometheus/client_golang/prometheus"

var (
	mailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codevo_mail_send_success_total",
		Help: "Total number of messages accepted by the SMTP relay",
	}, []string{"host"})
	// kind is one of the Kind strings, so cardinality stays small.
	mailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codevo_mail_send_failure_total",
		Help: "Total number of failed sends, by failing stage",
	}, []string{"host", "kind"})
)

func init() {
	prometheus.MustRegister(mailSendSuccess)
	prometheus.MustRegister(mailSendFailure)
}

// RecordFailure counts a send that failed before reaching the Dispatcher,
// e.g., while rendering the body.
func RecordFailure(host string, err error) {
	recordFailure(host, err)
}

func recordFailure(host string, err error) {
	mailSendFailure.WithLabelValues(host, KindOf(err).String()).Inc()
}
