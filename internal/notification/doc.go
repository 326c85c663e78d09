// Package notification decodes push notifications from the remote telemetry
// service and builds the subscription commands that request them.
//
// A notification carries, per attribute key, a list of [timestamp, value]
// pairs:
//
//	{
//	  "subscriptionId": -901980230,
//	  "errorCode": 0,
//	  "errorMsg": null,
//	  "data": {
//	    "pressure_value": [[1617975311084, "-0.017511"], [1617975309584, "-0.018762"]],
//	    "processingEnabled": [[1617975371768, "false"]]
//	  },
//	  "latestValues": {"pressure_value": 1617975311084, "processingEnabled": 1617975371768}
//	}
//
// DecodeUpdates flattens "data" into twin.AttributeUpdate values sorted by
// ascending timestamp. The sort is stable, so updates sharing a timestamp keep
// the order in which their keys appear in the document. Broken pairs are
// logged and skipped; only a payload that cannot be interpreted at all is a
// decode error (see ErrDecode).
//
// Decoding holds no state and is safe for concurrent use.
package notification
