package srpm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// KubeBuilder runs each srpm build as a kubernetes batch job in a sandbox
// pod. The job writes its artifact to a volume shared with the worker.
type KubeBuilder struct {
	clientset kubernetes.Interface
	namespace string

	image    string
	pvcName  string
	shareDir string

	timeout time.Duration
}

func NewKubeBuilder(clientset kubernetes.Interface, namespace, image, pvcName, shareDir string) *KubeBuilder {
	slog.Info("creating kubernetes srpm builder", "namespace", namespace, "image", image)
	return &KubeBuilder{
		clientset: clientset,
		namespace: namespace,
		image:     image,
		pvcName:   pvcName,
		shareDir:  shareDir,
		timeout:   30 * time.Minute,
	}
}

func (b *KubeBuilder) jobSpec(jobName, outputDir string, req Request) *batchv1.Job {
	backoffLimit := int32(0)
	ttl := int32(3600)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: b.namespace,
			Labels:    map[string]string{"app": "pkgforge", "component": "srpm-build"},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"job-name": jobName},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:  "srpm-build",
							Image: b.image,
							Env: []corev1.EnvVar{
								{Name: "CLONE_URL", Value: req.CloneURL},
								{Name: "COMMIT_SHA", Value: req.CommitSha},
								{Name: "SPECFILE_PATH", Value: req.SpecfilePath},
								{Name: "OUTPUT_DIR", Value: outputDir},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "share", MountPath: b.shareDir},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "share",
							VolumeSource: corev1.VolumeSource{
								PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
									ClaimName: b.pvcName,
								},
							},
						},
					},
				},
			},
		},
	}
}

// minShareFreeBytes is the space required on the shared volume before a
// build job is launched.
const minShareFreeBytes = 1 << 30

func (b *KubeBuilder) checkShareSpace() error {
	var stat unix.Statfs_t

	err := unix.Statfs(b.shareDir, &stat)
	if err != nil {
		return fmt.Errorf("error getting disk usage for share dir %v: %w", b.shareDir, err)
	}

	if free := stat.Bavail * uint64(stat.Bsize); free < minShareFreeBytes {
		return fmt.Errorf("share dir %v is low on space: %d bytes free", b.shareDir, free)
	}
	return nil
}

func (b *KubeBuilder) Build(ctx context.Context, req Request) (Result, error) {
	if err := b.checkShareSpace(); err != nil {
		return Result{}, err
	}

	buildId := uuid.New()
	jobName := fmt.Sprintf("srpm-build-%v", buildId)
	outputDir := filepath.Join(b.shareDir, "srpm-builds", buildId.String())

	slog.Info("starting srpm build job", "job_name", jobName, "commit_sha", req.CommitSha)

	job := b.jobSpec(jobName, outputDir, req)
	if _, err := b.clientset.BatchV1().Jobs(b.namespace).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return Result{}, fmt.Errorf("error creating srpm build job %v: %w", jobName, err)
	}

	var succeeded bool
	err := wait.PollUntilContextTimeout(ctx, 5*time.Second, b.timeout, true, func(ctx context.Context) (bool, error) {
		current, err := b.clientset.BatchV1().Jobs(b.namespace).Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			return false, fmt.Errorf("error checking srpm build job %v: %w", jobName, err)
		}
		if current.Status.Succeeded > 0 {
			succeeded = true
			return true, nil
		}
		if current.Status.Failed > 0 {
			succeeded = false
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("srpm build job %v did not finish: %w", jobName, err)
	}

	logs, logErr := b.jobLogs(ctx, jobName)
	if logErr != nil {
		slog.Error("error collecting srpm build logs", "job_name", jobName, "error", logErr)
		logs = fmt.Sprintf("(logs unavailable: %v)", logErr)
	}

	result := Result{Success: succeeded, Logs: logs}
	if succeeded {
		result.ArtifactPath, err = findArtifact(outputDir)
		if err != nil {
			slog.Error("srpm build job succeeded but artifact is missing", "job_name", jobName, "error", err)
			result.Success = false
			result.Logs = logs + "\n" + err.Error()
		}
	}

	slog.Info("srpm build job finished", "job_name", jobName, "success", result.Success)
	return result, nil
}

func (b *KubeBuilder) jobLogs(ctx context.Context, jobName string) (string, error) {
	pods, err := b.clientset.CoreV1().Pods(b.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return "", fmt.Errorf("error listing pods for job %v: %w", jobName, err)
	}

	var logs strings.Builder
	for _, pod := range pods.Items {
		stream, err := b.clientset.CoreV1().Pods(b.namespace).GetLogs(pod.Name, &corev1.PodLogOptions{}).Stream(ctx)
		if err != nil {
			return "", fmt.Errorf("error streaming logs for pod %v: %w", pod.Name, err)
		}
		if _, err := io.Copy(&logs, stream); err != nil {
			stream.Close()
			return "", fmt.Errorf("error reading logs for pod %v: %w", pod.Name, err)
		}
		stream.Close()
	}

	return logs.String(), nil
}

func findArtifact(outputDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, "*.src.rpm"))
	if err != nil {
		return "", fmt.Errorf("error searching for srpm in %v: %w", outputDir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no srpm produced in %v", outputDir)
	}
	return matches[0], nil
}
