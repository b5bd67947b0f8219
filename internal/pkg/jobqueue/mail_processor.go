package jobqueue

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/FormFox/internal/pkg/mail"
	"github.com/gofiber/fiber/v2/log"
)

// sendMail is swapped in tests
var sendMail = mail.SendMail

func processSendMailJob(ctx context.Context, job *Job) error {
	payload, err := MailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := sendMail(payload.To, payload.Subject, payload.Body); err != nil {
		return err
	}
	log.Infof("[JobQueue] Mail %q delivered to %s", payload.Subject, payload.To)
	return nil
}
