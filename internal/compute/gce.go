package compute

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gce "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
)

const bootImage = "projects/ubuntu-os-cloud/global/images/family/ubuntu-2404-lts-amd64"

// GCE implements Manager on Google Compute Engine.
type GCE struct {
	service *gce.Service
	project string
	zone    string
}

// NewGCE wraps an authenticated compute service for one project/zone.
func NewGCE(service *gce.Service, project, zone string) *GCE {
	return &GCE{service: service, project: project, zone: zone}
}

// Create inserts the instance and blocks until the insert operation settles.
func (g *GCE) Create(ctx context.Context, spec InstanceSpec) error {
	zone := spec.Zone
	if zone == "" {
		zone = g.zone
	}

	items := make([]*gce.MetadataItems, 0, len(spec.Metadata))
	for key, value := range spec.Metadata {
		v := value
		items = append(items, &gce.MetadataItems{Key: key, Value: &v})
	}

	inst := &gce.Instance{
		Name:        spec.Name,
		MachineType: fmt.Sprintf("zones/%s/machineTypes/%s", zone, spec.MachineType),
		Disks: []*gce.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &gce.AttachedDiskInitializeParams{
				SourceImage: bootImage,
				DiskSizeGb:  spec.DiskSizeGB,
				DiskType:    fmt.Sprintf("zones/%s/diskTypes/%s", zone, spec.DiskType),
			},
		}},
		NetworkInterfaces: []*gce.NetworkInterface{{
			Network:       "global/networks/default",
			AccessConfigs: []*gce.AccessConfig{{Type: "ONE_TO_ONE_NAT", Name: "External NAT"}},
		}},
		ServiceAccounts: []*gce.ServiceAccount{{
			Email:  "default",
			Scopes: []string{gce.DevstorageReadWriteScope},
		}},
		Metadata: &gce.Metadata{Items: items},
	}

	if spec.MaxLifetime > 0 {
		inst.Scheduling = &gce.Scheduling{
			ProvisioningModel:         "STANDARD",
			InstanceTerminationAction: "DELETE",
			MaxRunDuration:            &gce.Duration{Seconds: int64(spec.MaxLifetime.Seconds())},
		}
	}

	op, err := g.service.Instances.Insert(g.project, zone, inst).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("insert instance %s: %w", spec.Name, err)
	}
	return g.waitZoneOp(ctx, zone, op.Name)
}

func (g *GCE) Describe(ctx context.Context, name string) (Instance, error) {
	inst, err := g.service.Instances.Get(g.project, g.zone, name).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return Instance{}, ErrNotFound
		}
		return Instance{}, fmt.Errorf("get instance %s: %w", name, err)
	}

	created, _ := time.Parse(time.RFC3339, inst.CreationTimestamp)
	return Instance{
		Name:    inst.Name,
		Status:  inst.Status,
		Zone:    g.zone,
		Created: created,
	}, nil
}

// Delete removes the instance and waits for the operation. An absent
// instance is a no-op.
func (g *GCE) Delete(ctx context.Context, name string) error {
	op, err := g.service.Instances.Delete(g.project, g.zone, name).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete instance %s: %w", name, err)
	}
	return g.waitZoneOp(ctx, g.zone, op.Name)
}

func (g *GCE) waitZoneOp(ctx context.Context, zone, opName string) error {
	for {
		op, err := g.service.ZoneOperations.Wait(g.project, zone, opName).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("wait operation %s: %w", opName, err)
		}
		if op.Status == "DONE" {
			if op.Error != nil && len(op.Error.Errors) > 0 {
				return fmt.Errorf("operation %s failed: %s", opName, op.Error.Errors[0].Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
